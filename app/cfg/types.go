package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath       string
	ArtifactsDir string
	SettingsFile string

	// Run lease
	LeaseBackend  string
	LeaseTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Publishing
	S3Bucket           string
	S3Prefix           string
	PublishConcurrency int
	PublishAttempts    int

	// Application configuration
	Port         string
	APIAccessKey string
	WorkerCount  int
	Schedule     string
	Once         bool
	Republish    bool

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	LogFormat string
	Version   string
}

// Mode names what the process does after startup.
func (c *Cfg) Mode() string {
	switch {
	case c.Republish:
		return "republish"
	case c.Once:
		return "once"
	}
	return "serve"
}
