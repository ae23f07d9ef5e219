package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	Env        string `mapstructure:"ENV"`
	Store      string `mapstructure:"STORE"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns int32  `mapstructure:"DB_MIN_CONNS"`

	AuthSecret string `mapstructure:"AUTH_SECRET"`

	MeetingProvider  string `mapstructure:"MEETING_PROVIDER"`
	MeetingBaseURL   string `mapstructure:"MEETING_BASE_URL"`
	ZoomAccountID    string `mapstructure:"ZOOM_ACCOUNT_ID"`
	ZoomClientID     string `mapstructure:"ZOOM_CLIENT_ID"`
	ZoomClientSecret string `mapstructure:"ZOOM_CLIENT_SECRET"`

	JoinWindowLeadMinutes  int `mapstructure:"JOIN_WINDOW_LEAD_MINUTES"`
	JoinWindowTrailMinutes int `mapstructure:"JOIN_WINDOW_TRAIL_MINUTES"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE", "postgres")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MEETING_PROVIDER", "simulated")
	v.SetDefault("MEETING_BASE_URL", "https://meet.localhost")
	v.SetDefault("JOIN_WINDOW_LEAD_MINUTES", 10)
	v.SetDefault("JOIN_WINDOW_TRAIL_MINUTES", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("STORE")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("MEETING_PROVIDER")
	v.BindEnv("MEETING_BASE_URL")
	v.BindEnv("ZOOM_ACCOUNT_ID")
	v.BindEnv("ZOOM_CLIENT_ID")
	v.BindEnv("ZOOM_CLIENT_SECRET")
	v.BindEnv("JOIN_WINDOW_LEAD_MINUTES")
	v.BindEnv("JOIN_WINDOW_TRAIL_MINUTES")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.Store == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE=postgres")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — unauthenticated requests get")
		log.Println("WARNING: admin access. Do NOT use this configuration in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// JoinWindowLead returns the configured pre-start join margin.
func (c *Config) JoinWindowLead() time.Duration {
	return time.Duration(c.JoinWindowLeadMinutes) * time.Minute
}

// JoinWindowTrail returns the configured post-end join margin.
func (c *Config) JoinWindowTrail() time.Duration {
	return time.Duration(c.JoinWindowTrailMinutes) * time.Minute
}

// Validate checks that the configuration is safe to run. Outside development
// a real signing secret is required, and the Zoom provider needs credentials.
func (c *Config) Validate() error {
	if c.Store != "postgres" && c.Store != "memory" {
		return fmt.Errorf("STORE must be \"postgres\" or \"memory\", got %q", c.Store)
	}

	if !c.IsDev() && len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 bytes outside development")
	}

	switch c.MeetingProvider {
	case "simulated":
		if c.MeetingBaseURL == "" {
			return fmt.Errorf("MEETING_BASE_URL is required when MEETING_PROVIDER is \"simulated\"")
		}
	case "zoom":
		if c.ZoomAccountID == "" || c.ZoomClientID == "" || c.ZoomClientSecret == "" {
			return fmt.Errorf("ZOOM_ACCOUNT_ID, ZOOM_CLIENT_ID and ZOOM_CLIENT_SECRET are required when MEETING_PROVIDER is \"zoom\"")
		}
	default:
		return fmt.Errorf("MEETING_PROVIDER must be \"simulated\" or \"zoom\", got %q", c.MeetingProvider)
	}

	if c.JoinWindowLeadMinutes < 0 || c.JoinWindowTrailMinutes < 0 {
		return fmt.Errorf("join window minutes must not be negative")
	}

	return nil
}
