package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/coct-data/service-alerts/app/alert"
)

const odataAccept = "application/json;odata=verbose"

// JSONSource reads the list REST endpoint, following "__next" continuation links.
type JSONSource struct {
	url        string
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	maxPages   int
}

func NewJSONSource(url string, httpClient *http.Client, userAgent string, timeout time.Duration, maxPages int) *JSONSource {
	return &JSONSource{
		url:        url,
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
		maxPages:   maxPages,
	}
}

type listPage struct {
	D struct {
		Results []map[string]json.RawMessage `json:"results"`
		Next    string                       `json:"__next"`
	} `json:"d"`
}

func (s *JSONSource) Fetch(ctx context.Context) ([]alert.Raw, error) {
	var raws []alert.Raw
	skipped := 0

	url := s.url
	for page := 1; url != ""; page++ {
		if page > s.maxPages {
			return nil, fmt.Errorf("%w: more than %d pages", ErrSourceUnavailable, s.maxPages)
		}

		data, err := fetch(ctx, s.httpClient, url, odataAccept, s.userAgent, s.timeout)
		if err != nil {
			return nil, err
		}

		var lp listPage
		if err := json.Unmarshal(data, &lp); err != nil {
			return nil, fmt.Errorf("%w: failed to parse page %d: %w", ErrSourceUnavailable, page, err)
		}

		for _, record := range lp.D.Results {
			raw, err := decodeRecord(record)
			if err != nil {
				if raw.ID > 0 {
					// Validation rejects the bare id but keeps the stored alert from expiring
					slog.Warn("Keeping undecodable record by id", "page", page, "id", raw.ID, "error", err)
					raws = append(raws, raw)
					continue
				}
				slog.Warn("Skipping undecodable record", "page", page, "error", err)
				skipped++
				continue
			}
			raws = append(raws, raw)
		}

		url = lp.D.Next
	}

	slog.Debug("Source fetched", "type", "json", "records", len(raws), "skipped", skipped)
	return raws, nil
}

// columns holds the JSON names of the text fields of alert.Raw.
var columns = func() map[string]bool {
	names := make(map[string]bool)
	t := reflect.TypeOf(alert.Raw{})
	for i := 0; i < t.NumField(); i++ {
		if name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ","); name != "" && name != "id" {
			names[name] = true
		}
	}
	return names
}()

// decodeRecord keeps the flat values of a list item. Nested objects (metadata, deferred
// lookups) are dropped and numeric or boolean columns are read as their literal text. When the
// id can be read but the rest of the record cannot, the error comes with a Raw holding only the id.
func decodeRecord(record map[string]json.RawMessage) (alert.Raw, error) {
	id, err := recordID(record)
	if err != nil {
		return alert.Raw{}, err
	}

	flat := make(map[string]json.RawMessage, len(record))
	for key, value := range record {
		value = bytes.TrimSpace(value)
		if strings.EqualFold(key, "id") || len(value) == 0 || bytes.Equal(value, []byte("null")) {
			continue
		}
		switch {
		case value[0] == '{' || value[0] == '[':
			if columns[key] {
				return alert.Raw{ID: id}, fmt.Errorf("column %s holds a nested value", key)
			}
		case value[0] == '"':
			flat[key] = value
		default:
			flat[key] = json.RawMessage(strconv.Quote(string(value)))
		}
	}

	data, err := json.Marshal(flat)
	if err != nil {
		return alert.Raw{ID: id}, fmt.Errorf("failed to encode record: %w", err)
	}

	var raw alert.Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return alert.Raw{ID: id}, fmt.Errorf("failed to decode record: %w", err)
	}
	raw.ID = id
	return raw, nil
}

// recordID reads the "id" column, which the list may send as a number or a numeric string.
func recordID(record map[string]json.RawMessage) (int64, error) {
	value, ok := record["id"]
	if !ok {
		return 0, fmt.Errorf("record has no id")
	}
	text := string(bytes.Trim(bytes.TrimSpace(value), `"`))
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("record has unreadable id %q", text)
	}
	return id, nil
}
