package augment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coct-data/service-alerts/app/alert"
)

var _ Geocoder = (*NominatimGeocoder)(nil)

// NominatimGeocoder looks alerts up against a Nominatim-compatible search endpoint and returns
// the best match's polygon text.
type NominatimGeocoder struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

func NewNominatimGeocoder(baseURL string, httpClient *http.Client, userAgent string) *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

type nominatimPlace struct {
	GeoText     string `json:"geotext"`
	DisplayName string `json:"display_name"`
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, a *alert.Alert) (string, error) {
	query := GeocodeQuery(a)
	if query == "" {
		return "", nil
	}

	params := url.Values{
		"q":            {query},
		"format":       {"jsonv2"},
		"polygon_text": {"1"},
		"limit":        {"1"},
		"countrycodes": {"za"},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", g.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to query geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var places []nominatimPlace
	if err := json.Unmarshal(data, &places); err != nil {
		return "", fmt.Errorf("failed to parse geocoder response: %w", err)
	}
	if len(places) == 0 {
		return "", nil
	}
	return places[0].GeoText, nil
}

// GeocodeQuery is the free-text address searched for: location, area, and the city.
func GeocodeQuery(a *alert.Alert) string {
	var parts []string
	if a.Location != nil {
		parts = append(parts, *a.Location)
	}
	if a.Area != nil {
		parts = append(parts, *a.Area)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(append(parts, "Cape Town"), ", ")
}
