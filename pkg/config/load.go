package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from the given YAML file path. Environment
// variables prefixed with HABR_ override file values, for example
// HABR_REQUEST_TIMEOUT=45s.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("HABR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers defaults for everything the pipeline does not
// strictly need spelled out in the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "https://habr.com/ru/articles/")

	v.SetDefault("save.path", ".")
	v.SetDefault("save.extension", "json")
	v.SetDefault("save.skip", false)

	v.SetDefault("request.max_concurrent_requests", 5)
	v.SetDefault("request.retry_attempts", 3)
	v.SetDefault("request.min_delay", 500*time.Millisecond)
	v.SetDefault("request.max_delay", 2*time.Second)
	v.SetDefault("request.batch_size", 50)
	v.SetDefault("request.buffer_size", 100)
	v.SetDefault("request.timeout", 30*time.Second)
	v.SetDefault("request.session.limit", 100)
	v.SetDefault("request.session.limit_per_host", 10)
	v.SetDefault("request.session.idle_conn_timeout", 90*time.Second)
	v.SetDefault("request.session.force_close", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "console")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", time.Hour)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}
