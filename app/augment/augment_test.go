package augment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coct-data/service-alerts/app/alert"
)

func testAlert(id int64) *alert.Alert {
	return &alert.Alert{
		ID:             id,
		ServiceArea:    "Electricity",
		Title:          "Cable stolen",
		Description:    "Cable stolen",
		Area:           alert.Ptr("LWANDLE"),
		Location:       alert.Ptr("Noxolo st"),
		StartTimestamp: time.Date(2023, 9, 21, 7, 0, 0, 0, time.UTC),
		Status:         alert.StatusOpen,
	}
}

type fakeGeocoder struct {
	calls atomic.Int32
	wkt   string
	err   error
}

func (f *fakeGeocoder) Geocode(ctx context.Context, a *alert.Alert) (string, error) {
	f.calls.Add(1)
	return f.wkt, f.err
}

type fakeSummariser struct {
	text  string
	err   error
	delay time.Duration
}

func (f *fakeSummariser) Summarise(ctx context.Context, a *alert.Alert) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

var (
	_ Geocoder   = (*fakeGeocoder)(nil)
	_ Summariser = (*fakeSummariser)(nil)
)

func TestAugmentFillsCollaboratorFields(t *testing.T) {
	geocoder := &fakeGeocoder{wkt: "POLYGON((18.7 -34.1, 18.8 -34.1, 18.8 -34.0, 18.7 -34.1))"}
	summariser := &fakeSummariser{text: "Power outage in Lwandle."}
	augmenter := NewAugmenter(geocoder, summariser, Options{
		Hashtags: map[string]string{"Electricity": "#Electricity"},
	})

	alerts := []*alert.Alert{testAlert(1), testAlert(2)}
	failures, err := augmenter.Augment(context.Background(), alerts)
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 0 {
		t.Errorf("Expected no failures, got %d", len(failures))
	}

	for _, a := range alerts {
		if a.GeospatialFootprint == nil || !strings.HasPrefix(*a.GeospatialFootprint, "POLYGON") {
			t.Errorf("Expected footprint for alert %d", a.ID)
		}
		if a.Summary == nil || *a.Summary != "Power outage in Lwandle." {
			t.Errorf("Expected summary for alert %d", a.ID)
		}
		if a.TootText == nil || *a.TootText != "Power outage in Lwandle.\n#Electricity #CapeTown" {
			t.Errorf("Expected toot text for alert %d, got %v", a.ID, a.TootText)
		}
	}
}

func TestAugmentSkipsExcludedAreaTypes(t *testing.T) {
	geocoder := &fakeGeocoder{wkt: "POINT(18.7 -34.1)"}
	augmenter := NewAugmenter(geocoder, nil, Options{ExcludedAreaTypes: []string{"Driving Licence Testing Centre"}})

	a := testAlert(1)
	a.AreaType = alert.Ptr(alert.AreaType("Driving Licence Testing Centre"))
	if _, err := augmenter.Augment(context.Background(), []*alert.Alert{a}); err != nil {
		t.Fatal(err)
	}

	if geocoder.calls.Load() != 0 {
		t.Errorf("Expected no geocoder calls, got %d", geocoder.calls.Load())
	}
	if a.GeospatialFootprint != nil {
		t.Error("Expected no footprint")
	}
}

func TestAugmentTimeoutOmitsField(t *testing.T) {
	summariser := &fakeSummariser{text: "late", delay: time.Second}
	augmenter := NewAugmenter(nil, summariser, Options{SummariseTimeout: 10 * time.Millisecond})

	a := testAlert(1)
	a.Summary = alert.Ptr("stale")
	failures, err := augmenter.Augment(context.Background(), []*alert.Alert{a})
	if err != nil {
		t.Fatal(err)
	}

	if len(failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(failures))
	}
	if !failures[0].Timeout() || !errors.Is(failures[0], ErrCollaboratorTimeout) {
		t.Errorf("Expected timeout failure, got %v", failures[0])
	}
	if failures[0].Collaborator != CollaboratorSummariser {
		t.Errorf("Expected summariser failure, got '%s'", failures[0].Collaborator)
	}
	if a.Summary != nil || a.TootText != nil {
		t.Error("Expected summary fields omitted after timeout")
	}
}

func TestAugmentCollaboratorErrorIsNotFatal(t *testing.T) {
	geocoder := &fakeGeocoder{err: errors.New("503")}
	summariser := &fakeSummariser{text: "ok"}
	augmenter := NewAugmenter(geocoder, summariser, Options{})

	a := testAlert(1)
	failures, err := augmenter.Augment(context.Background(), []*alert.Alert{a})
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 1 || failures[0].Collaborator != CollaboratorGeocoder {
		t.Errorf("Expected one geocoder failure, got %v", failures)
	}
	if failures[0].Timeout() {
		t.Error("Expected non-timeout failure")
	}
	if a.Summary == nil {
		t.Error("Expected summary despite geocoder failure")
	}
}

func TestTootTextWithoutHashtag(t *testing.T) {
	if TootText("summary", "") != nil {
		t.Error("Expected no toot text without a hashtag")
	}
}

func TestNominatimGeocoder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("Expected path '/search', got '%s'", r.URL.Path)
		}
		if q := r.URL.Query().Get("q"); q != "Noxolo st, LWANDLE, Cape Town" {
			t.Errorf("Expected query 'Noxolo st, LWANDLE, Cape Town', got '%s'", q)
		}
		if r.URL.Query().Get("polygon_text") != "1" {
			t.Error("Expected polygon_text=1")
		}
		fmt.Fprint(w, `[{"display_name":"Lwandle","geotext":"POLYGON((18.8 -34.1,18.9 -34.1,18.9 -34.0,18.8 -34.1))"}]`)
	}))
	defer server.Close()

	geocoder := NewNominatimGeocoder(server.URL+"/", server.Client(), "service-alerts/test")
	wkt, err := geocoder.Geocode(context.Background(), testAlert(1))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(wkt, "POLYGON((18.8") {
		t.Errorf("Expected polygon, got '%s'", wkt)
	}
}

func TestNominatimGeocoderNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	geocoder := NewNominatimGeocoder(server.URL, server.Client(), "test")
	wkt, err := geocoder.Geocode(context.Background(), testAlert(1))
	if err != nil {
		t.Fatal(err)
	}
	if wkt != "" {
		t.Errorf("Expected empty result, got '%s'", wkt)
	}
}

func TestOpenAISummariser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("Expected chat completions path, got '%s'", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("Expected model 'test-model', got '%s'", req.Model)
		}
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, `"area":"LWANDLE"`) {
			t.Errorf("Expected system and user messages, got %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"test-model",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Power outage in Lwandle, Noxolo st."}}]}`)
	}))
	defer server.Close()

	summariser := NewOpenAISummariser("sk-test", server.URL+"/", "test-model", 20)
	text, err := summariser.Summarise(context.Background(), testAlert(1))
	if err != nil {
		t.Fatal(err)
	}
	if text != "Power outage in Lwan" {
		t.Errorf("Expected text truncated to 20 characters, got '%s'", text)
	}
}

func TestSummaryPromptUsesSAST(t *testing.T) {
	prompt, err := SummaryPrompt(testAlert(1))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, `"start_timestamp":"2023-09-21T09:00:00+02:00"`) {
		t.Errorf("Expected SAST start timestamp, got '%s'", prompt)
	}
	if strings.Contains(prompt, "forecast_end_timestamp") {
		t.Errorf("Expected absent forecast end to be omitted, got '%s'", prompt)
	}
}
