package source

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/coct-data/service-alerts/app/alert"
)

const rssAccept = "application/rss+xml, application/xml;q=0.9, */*;q=0.8"

// RSSSource reads the list's RSS view. Each item describes one record as a run of
// <div><b>Label:</b> value</div> blocks in its description.
type RSSSource struct {
	url          string
	httpClient   *http.Client
	userAgent    string
	timeout      time.Duration
	gofeedParser *gofeed.Parser
}

func NewRSSSource(url string, httpClient *http.Client, userAgent string, timeout time.Duration) *RSSSource {
	return &RSSSource{
		url:          url,
		httpClient:   httpClient,
		userAgent:    userAgent,
		timeout:      timeout,
		gofeedParser: gofeed.NewParser(),
	}
}

var itemIDRE = regexp.MustCompile(`[?&]ID=(\d+)`)

// Display date layouts, read as SAST.
var displayDateLayouts = []string{
	"2006/01/02 15:04",
	"2006/01/02",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 3:04 PM",
	"1/2/2006",
}

func (s *RSSSource) Fetch(ctx context.Context) ([]alert.Raw, error) {
	data, err := fetch(ctx, s.httpClient, s.url, rssAccept, s.userAgent, s.timeout)
	if err != nil {
		return nil, err
	}

	feed, err := s.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse feed: %w", ErrSourceUnavailable, err)
	}

	raws := make([]alert.Raw, 0, len(feed.Items))
	skipped := 0
	for _, item := range feed.Items {
		raw, err := parseItem(item)
		if err != nil {
			if raw.ID > 0 {
				slog.Warn("Keeping unreadable feed item by id", "id", raw.ID, "error", err)
				raws = append(raws, raw)
				continue
			}
			slog.Warn("Skipping unreadable feed item", "guid", item.GUID, "link", item.Link, "error", err)
			skipped++
			continue
		}
		raws = append(raws, raw)
	}

	slog.Debug("Source fetched", "type", "rss", "records", len(raws), "skipped", skipped)
	return raws, nil
}

// parseItem reads one feed item. Once the id is known, errors come with a Raw holding only it.
func parseItem(item *gofeed.Item) (alert.Raw, error) {
	id, err := itemID(item)
	if err != nil {
		return alert.Raw{}, err
	}

	fields, err := descriptionFields(cmp.Or(item.Content, item.Description))
	if err != nil {
		return alert.Raw{ID: id}, err
	}
	if len(fields) == 0 {
		return alert.Raw{ID: id}, fmt.Errorf("item %d has no labelled fields", id)
	}

	return alert.Raw{
		ID:              id,
		Title:           cmp.Or(fields["title"], item.Title),
		ServiceArea:     fields["service area"],
		Description:     fields["description"],
		Planned:         fields["planned/unplanned"],
		AreaType:        fields["area type"],
		Area:            fields["area"],
		Location:        fields["address/location"],
		PublishDate:     displayDate(fields["publish date"]),
		EffectiveDate:   displayDate(fields["effective date"]),
		StartTime:       fields["start time"],
		ForecastEndTime: fields["forecast end time"],
		ExpiryDate:      displayDate(fields["alert expiry date"]),
		ReferenceNumber: fields["reference no"],
		Status:          fields["status"],
	}, nil
}

func itemID(item *gofeed.Item) (int64, error) {
	for _, candidate := range []string{item.Link, item.GUID} {
		if m := itemIDRE.FindStringSubmatch(candidate); m != nil {
			return strconv.ParseInt(m[1], 10, 64)
		}
	}
	if id, err := strconv.ParseInt(strings.TrimSpace(item.GUID), 10, 64); err == nil {
		return id, nil
	}
	return 0, fmt.Errorf("no item id in link %q or guid %q", item.Link, item.GUID)
}

// descriptionFields maps lower-cased labels to their text values.
func descriptionFields(html string) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse description: %w", err)
	}

	fields := make(map[string]string)
	doc.Find("div").Each(func(_ int, div *goquery.Selection) {
		label := div.ChildrenFiltered("b").First()
		if label.Length() == 0 {
			return
		}
		name := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(label.Text()), ":"))
		value := strings.TrimSpace(strings.TrimPrefix(div.Text(), label.Text()))
		if name != "" {
			fields[name] = value
		}
	})

	return fields, nil
}

// displayDate turns a list display date into the RFC3339 form the REST export uses.
// Unrecognised values pass through so that validation reports them.
func displayDate(value string) string {
	if value == "" {
		return ""
	}
	for _, layout := range displayDateLayouts {
		if t, err := time.ParseInLocation(layout, value, alert.SAST); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return value
}
