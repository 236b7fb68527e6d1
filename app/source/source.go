package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coct-data/service-alerts/app/alert"
	"github.com/coct-data/service-alerts/app/settings"
)

var ErrSourceUnavailable = errors.New("source unavailable")

// Source pulls the full current set of raw alert records. The result keeps upstream order and
// may contain duplicates; reconciliation deals with both.
type Source interface {
	Fetch(ctx context.Context) ([]alert.Raw, error)
}

var (
	_ Source = (*JSONSource)(nil)
	_ Source = (*RSSSource)(nil)
)

// New builds the source described by the settings.
func New(s settings.SourceSettings, httpClient *http.Client, userAgent string) (Source, error) {
	timeout := time.Duration(s.Timeout) * time.Second

	switch s.Type {
	case settings.SourceTypeJSON:
		return NewJSONSource(s.URL, httpClient, userAgent, timeout, s.MaxPages), nil
	case settings.SourceTypeRSS:
		return NewRSSSource(s.URL, httpClient, userAgent, timeout), nil
	}
	return nil, fmt.Errorf("unknown source type: %s", s.Type)
}

func fetch(ctx context.Context, httpClient *http.Client, url, accept, userAgent string, timeout time.Duration) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch %s: %w", ErrSourceUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP error: %d %s", ErrSourceUnavailable, resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrSourceUnavailable, err)
	}

	return data, nil
}
