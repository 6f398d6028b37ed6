// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like CDS_BASE_URL
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overrides, ignored when the file is absent.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or the project root.
func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "cds-orchestrator"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.CDS.DiscoveryTTL == 0 {
		cfg.CDS.DiscoveryTTL = 300 // 5 minutes
	}
	if cfg.CDS.ResponseTTL == 0 {
		cfg.CDS.ResponseTTL = 30
	}
	if cfg.CDS.ServiceTimeout == 0 {
		cfg.CDS.ServiceTimeout = 5000
	}
	if cfg.CDS.DebounceDelay == 0 {
		cfg.CDS.DebounceDelay = 500
	}
	if cfg.CDS.FeedbackTimeout == 0 {
		cfg.CDS.FeedbackTimeout = 3000
	}

	if cfg.Policies == nil {
		cfg.Policies = map[string]PolicyConfig{}
	}
	for hookType, policy := range defaultPolicies() {
		if _, ok := cfg.Policies[hookType]; !ok {
			cfg.Policies[hookType] = policy
		}
	}

	if cfg.Events == nil {
		cfg.Events = map[string]string{}
	}
	for event, hookType := range defaultEvents() {
		if _, ok := cfg.Events[event]; !ok {
			cfg.Events[event] = hookType
		}
	}

	if cfg.Database.Elasticsearch.AuditIndex == "" {
		cfg.Database.Elasticsearch.AuditIndex = "cds-hook-firings"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func defaultPolicies() map[string]PolicyConfig {
	return map[string]PolicyConfig{
		"patient-view": {
			Mode:      "banner",
			Position:  "top",
			AutoHide:  false,
			MaxAlerts: 3,
			Priority:  1,
		},
		"medication-prescribe": {
			Mode:      "dialog",
			Position:  "center",
			AutoHide:  false,
			MaxAlerts: 5,
			Priority:  1,
		},
		"order-sign": {
			Mode:      "dialog",
			Position:  "center",
			AutoHide:  false,
			MaxAlerts: 5,
			Priority:  1,
		},
		"order-select": {
			Mode:      "sidebar",
			Position:  "right",
			AutoHide:  true,
			MaxAlerts: 5,
			Priority:  2,
		},
		"encounter-start": {
			Mode:      "toast",
			Position:  "bottom-right",
			AutoHide:  true,
			MaxAlerts: 2,
			Priority:  3,
		},
		"encounter-discharge": {
			Mode:      "toast",
			Position:  "bottom-right",
			AutoHide:  true,
			MaxAlerts: 2,
			Priority:  3,
		},
	}
}

func defaultEvents() map[string]string {
	return map[string]string{
		"patient-opened":         "patient-view",
		"medication-prescribing": "medication-prescribe",
		"order-signing":          "order-sign",
		"order-selected":         "order-select",
		"encounter-started":      "encounter-start",
		"encounter-ended":        "encounter-discharge",
		"problem-list-updated":   "patient-view",
	}
}

func validateConfig(cfg *Config) error {
	if cfg.CDS.BaseURL == "" {
		return fmt.Errorf("cds.base_url is required")
	}
	for hookType, policy := range cfg.Policies {
		if policy.MaxAlerts <= 0 {
			return fmt.Errorf("policy for %q must have max_alerts > 0", hookType)
		}
		if policy.Mode == "" {
			return fmt.Errorf("policy for %q must have a mode", hookType)
		}
	}
	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when redis is enabled")
	}
	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required when elasticsearch is enabled")
	}
	return nil
}
