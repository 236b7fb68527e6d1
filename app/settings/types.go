package settings

// Settings is the pipeline configuration file. Process-level options (paths, ports, keys) live
// in cfg; everything describing what the pipeline talks to lives here.
type Settings struct {
	Source        SourceSettings       `yaml:"source"`
	Geocoder      GeocoderSettings     `yaml:"geocoder"`
	Summariser    SummariserSettings   `yaml:"summariser"`
	Augment       AugmentSettings      `yaml:"augment"`
	Hashtags      map[string]string    `yaml:"hashtags"`
	Notifications NotificationSettings `yaml:"notifications"`
}

type SourceSettings struct {
	Type     string `yaml:"type"` // json or rss
	URL      string `yaml:"url"`
	Timeout  int    `yaml:"timeout"` // seconds
	MaxPages int    `yaml:"max_pages"`
}

type GeocoderSettings struct {
	Enabled           bool     `yaml:"enabled"`
	URL               string   `yaml:"url"`
	Timeout           int      `yaml:"timeout"` // seconds
	ExcludedAreaTypes []string `yaml:"excluded_area_types"`
}

type SummariserSettings struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Timeout   int    `yaml:"timeout"` // seconds
	MaxLength int    `yaml:"max_length"`
}

type AugmentSettings struct {
	Concurrency int `yaml:"concurrency"`
}

type NotificationSettings struct {
	Contract string         `yaml:"contract"`
	Kafka    *KafkaSettings `yaml:"kafka"`
	SNS      *SNSSettings   `yaml:"sns"`
	Slack    *SlackSettings `yaml:"slack"`
}

type KafkaSettings struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type SNSSettings struct {
	TopicArn string `yaml:"topic_arn"`
}

type SlackSettings struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}
