package settings

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

const (
	SourceTypeJSON = "json"
	SourceTypeRSS  = "rss"
)

// DefaultHashtags maps service areas to the hashtag appended to toot text.
var DefaultHashtags = map[string]string{
	"Water & Sanitation":         "#WaterAndSanitation",
	"Electricity":                "#Electricity",
	"Refuse":                     "#Refuse",
	"Drivers Licence Enquiries":  "#DLE",
	"Motor Vehicle Registration": "#MVR",
	"Water Management":           "#MeterManagement",
	"Events":                     "#Events",
	"City Health":                "#CityHealth",
}

var DefaultExcludedAreaTypes = []string{"Driving Licence Testing Centre"}

// Load reads the settings file, expands ${VAR} references from the environment, fills in
// defaults and validates the result.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}

	applyDefaults(&settings)

	if err := validate(&settings); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}

	slog.Debug("Settings loaded", "path", path, "source", settings.Source.Type,
		"geocoder", settings.Geocoder.Enabled, "summariser", settings.Summariser.Enabled,
		"contract", settings.Notifications.Contract)

	return &settings, nil
}

func applyDefaults(s *Settings) {
	if s.Source.Type == "" {
		s.Source.Type = SourceTypeJSON
	}
	if s.Source.Timeout == 0 {
		s.Source.Timeout = 30
	}
	if s.Source.MaxPages == 0 {
		s.Source.MaxPages = 50
	}
	if s.Geocoder.Timeout == 0 {
		s.Geocoder.Timeout = 5
	}
	if s.Geocoder.ExcludedAreaTypes == nil {
		s.Geocoder.ExcludedAreaTypes = slices.Clone(DefaultExcludedAreaTypes)
	}
	if s.Summariser.Timeout == 0 {
		s.Summariser.Timeout = 120
	}
	if s.Summariser.MaxLength == 0 {
		s.Summariser.MaxLength = 280
	}
	if s.Summariser.Model == "" {
		s.Summariser.Model = "gpt-4o-mini"
	}
	if s.Augment.Concurrency == 0 {
		s.Augment.Concurrency = 4
	}
	if s.Notifications.Contract == "" {
		s.Notifications.Contract = "ids"
	}

	hashtags := maps.Clone(DefaultHashtags)
	maps.Copy(hashtags, s.Hashtags)
	s.Hashtags = hashtags
}

func validate(s *Settings) error {
	if s == nil {
		return fmt.Errorf("settings is nil")
	}

	if s.Source.URL == "" {
		return fmt.Errorf("source URL is required")
	}
	if s.Source.Type != SourceTypeJSON && s.Source.Type != SourceTypeRSS {
		return fmt.Errorf("invalid source type: %s", s.Source.Type)
	}

	nonNegativeFields := map[string]int{
		"source timeout":     s.Source.Timeout,
		"source max pages":   s.Source.MaxPages,
		"geocoder timeout":   s.Geocoder.Timeout,
		"summariser timeout": s.Summariser.Timeout,
		"summariser length":  s.Summariser.MaxLength,
		"concurrency":        s.Augment.Concurrency,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if s.Geocoder.Enabled && s.Geocoder.URL == "" {
		return fmt.Errorf("geocoder URL is required when the geocoder is enabled")
	}
	if s.Summariser.Enabled && s.Summariser.APIKey == "" {
		return fmt.Errorf("summariser API key is required when the summariser is enabled")
	}

	n := s.Notifications
	if n.Contract != "ids" && n.Contract != "alerts" {
		return fmt.Errorf("invalid notification contract: %s", n.Contract)
	}
	if n.Kafka != nil && (len(n.Kafka.Brokers) == 0 || n.Kafka.Topic == "") {
		return fmt.Errorf("kafka notifications need brokers and a topic")
	}
	if n.SNS != nil && n.SNS.TopicArn == "" {
		return fmt.Errorf("sns notifications need a topic ARN")
	}
	if n.Slack != nil && (n.Slack.Token == "" || n.Slack.Channel == "") {
		return fmt.Errorf("slack notifications need a token and a channel")
	}

	return nil
}
