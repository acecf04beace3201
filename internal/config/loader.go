package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "VISITLENS"

// Load reads configuration in three layers: built-in defaults, an optional
// YAML file, and VISITLENS_* environment variables. path may be empty, in
// which case only an optional ./visitlens.yaml is considered.
func Load(path string) (Config, error) {
	v := viper.New()

	defaults := Default()
	setDefaults(v, defaults)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("visitlens")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration as YAML to path, creating
// parent directories as needed. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	data, err := yaml.Marshal(defaultDocument())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// defaultDocument renders the defaults with durations as human-readable
// strings, which is how the loader reads them back.
func defaultDocument() map[string]any {
	d := Default()
	return map[string]any{
		"tracking": map[string]any{
			"place_id":      d.Tracking.PlaceID,
			"initial_goal":  d.Tracking.InitialGoal,
			"poll_interval": d.Tracking.PollInterval.String(),
			"jitter_min":    d.Tracking.JitterMin.String(),
			"jitter_max":    d.Tracking.JitterMax.String(),
			"auto_start":    d.Tracking.AutoStart,
			"channel_id":    d.Tracking.ChannelID,
		},
		"upstream": map[string]any{
			"request_floor":      d.Upstream.RequestFloor.String(),
			"request_jitter_min": d.Upstream.RequestJitterMin.String(),
			"request_jitter_max": d.Upstream.RequestJitterMax.String(),
			"quota_requests":     d.Upstream.QuotaRequests,
			"quota_window":       d.Upstream.QuotaWindow.String(),
			"max_retries":        d.Upstream.MaxRetries,
			"max_pages":          d.Upstream.MaxPages,
			"timeout":            d.Upstream.Timeout.String(),
		},
		"server": map[string]any{
			"host":             d.Server.Host,
			"port":             d.Server.Port,
			"read_timeout":     d.Server.ReadTimeout.String(),
			"write_timeout":    d.Server.WriteTimeout.String(),
			"idle_timeout":     d.Server.IdleTimeout.String(),
			"shutdown_timeout": d.Server.ShutdownTimeout.String(),
		},
		"logging": map[string]any{
			"level": d.Logging.Level,
		},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("tracking.place_id", d.Tracking.PlaceID)
	v.SetDefault("tracking.initial_goal", d.Tracking.InitialGoal)
	v.SetDefault("tracking.poll_interval", d.Tracking.PollInterval)
	v.SetDefault("tracking.jitter_min", d.Tracking.JitterMin)
	v.SetDefault("tracking.jitter_max", d.Tracking.JitterMax)
	v.SetDefault("tracking.auto_start", d.Tracking.AutoStart)
	v.SetDefault("tracking.channel_id", d.Tracking.ChannelID)

	v.SetDefault("upstream.request_floor", d.Upstream.RequestFloor)
	v.SetDefault("upstream.request_jitter_min", d.Upstream.RequestJitterMin)
	v.SetDefault("upstream.request_jitter_max", d.Upstream.RequestJitterMax)
	v.SetDefault("upstream.quota_requests", d.Upstream.QuotaRequests)
	v.SetDefault("upstream.quota_window", d.Upstream.QuotaWindow)
	v.SetDefault("upstream.max_retries", d.Upstream.MaxRetries)
	v.SetDefault("upstream.max_pages", d.Upstream.MaxPages)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)
	v.SetDefault("upstream.user_agent", d.Upstream.UserAgent)
	v.SetDefault("upstream.games_base_url", d.Upstream.GamesBaseURL)
	v.SetDefault("upstream.apis_base_url", d.Upstream.ApisBaseURL)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
}
