// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	CDS      CDSConfig               `mapstructure:"cds"`
	Policies map[string]PolicyConfig `mapstructure:"policies"`
	Events   map[string]string       `mapstructure:"events"`
	Database DatabaseConfig          `mapstructure:"database"`
	Server   ServerConfig            `mapstructure:"server"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// CDSConfig holds settings for the CDS Hooks client stack.
type CDSConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	FHIRServer      string `mapstructure:"fhir_server"`
	AuthToken       string `mapstructure:"auth_token"`
	DiscoveryTTL    int    `mapstructure:"discovery_ttl"`    // seconds
	ResponseTTL     int    `mapstructure:"response_ttl"`     // seconds
	ServiceTimeout  int    `mapstructure:"service_timeout"`  // milliseconds
	DebounceDelay   int    `mapstructure:"debounce_delay"`   // milliseconds
	FeedbackTimeout int    `mapstructure:"feedback_timeout"` // milliseconds
}

// DiscoveryTTLDuration returns the catalog cache TTL as a duration.
func (c CDSConfig) DiscoveryTTLDuration() time.Duration {
	return time.Duration(c.DiscoveryTTL) * time.Second
}

// ResponseTTLDuration returns the response cache TTL as a duration.
func (c CDSConfig) ResponseTTLDuration() time.Duration {
	return time.Duration(c.ResponseTTL) * time.Second
}

// ServiceTimeoutDuration returns the per-service call timeout as a duration.
func (c CDSConfig) ServiceTimeoutDuration() time.Duration {
	return time.Duration(c.ServiceTimeout) * time.Millisecond
}

// DebounceDelayDuration returns the default debounce delay as a duration.
func (c CDSConfig) DebounceDelayDuration() time.Duration {
	return time.Duration(c.DebounceDelay) * time.Millisecond
}

// PolicyConfig describes how cards for one hook type are surfaced.
type PolicyConfig struct {
	Mode      string `mapstructure:"mode"`
	Position  string `mapstructure:"position"`
	AutoHide  bool   `mapstructure:"auto_hide"`
	MaxAlerts int    `mapstructure:"max_alerts"`
	Priority  int    `mapstructure:"priority"`
}

type DatabaseConfig struct {
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	AuditIndex string   `mapstructure:"audit_index"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
