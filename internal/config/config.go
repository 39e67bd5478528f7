package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Session SessionConfig `mapstructure:"session"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// WebhookConfig describes the single remote endpoint queries are posted to
type WebhookConfig struct {
	URL          string  `mapstructure:"url"`
	Action       string  `mapstructure:"action"`
	TimeoutMS    int     `mapstructure:"timeout_ms"`
	RateLimit    float64 `mapstructure:"rate_limit"` // requests per second, 0 disables
	MaxBodyBytes int64   `mapstructure:"max_body_bytes"`
}

// Timeout returns the request deadline as a duration
func (w WebhookConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutMS) * time.Millisecond
}

type SessionConfig struct {
	Store            string `mapstructure:"store"` // "bolt" or "memory"
	Path             string `mapstructure:"path"`  // Database path, default ./data/sessions.db
	CookieName       string `mapstructure:"cookie_name"`
	CookieMaxAgeDays int    `mapstructure:"cookie_max_age_days"`
	IdleTTLMinutes   int    `mapstructure:"idle_ttl_minutes"` // widget state of idle browsers is dropped after this
}

// IdleTTL returns how long an idle browser's widget state is kept. It
// never exceeds the cookie lifetime.
func (s SessionConfig) IdleTTL() time.Duration {
	ttl := time.Duration(s.IdleTTLMinutes) * time.Minute
	cookie := time.Duration(s.CookieMaxAgeDays) * 24 * time.Hour
	if ttl <= 0 || (cookie > 0 && ttl > cookie) {
		ttl = cookie
	}
	return ttl
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var ErrMissingWebhookURL = errors.New("webhook.url is required (set it in config.yaml or AGS_WEBHOOK_URL)")

func Load(cfgFile string) *Config {
	// Load .env file if exists (ignore error if not found)
	godotenv.Load()
	godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	// Replace . with _ for nested config keys
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AGS")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is ok, use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic("Error reading config file: " + err.Error())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("Error unmarshaling config: " + err.Error())
	}

	return &cfg
}

// Validate reports configuration the program cannot run without
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Webhook.URL) == "" {
		return ErrMissingWebhookURL
	}
	if c.Webhook.TimeoutMS <= 0 {
		return errors.New("webhook.timeout_ms must be positive")
	}
	switch c.Session.Store {
	case "bolt", "memory":
	default:
		return errors.New("session.store must be \"bolt\" or \"memory\"")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)

	// The widget waits 20s for the webhook before giving up
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.action", "sendMessage")
	v.SetDefault("webhook.timeout_ms", 20000)
	v.SetDefault("webhook.rate_limit", 0)
	v.SetDefault("webhook.max_body_bytes", 10*1024*1024)

	v.SetDefault("session.store", "bolt")
	v.SetDefault("session.path", "./data/sessions.db")
	v.SetDefault("session.cookie_name", "lava_agent_session")
	v.SetDefault("session.cookie_max_age_days", 365)
	v.SetDefault("session.idle_ttl_minutes", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
