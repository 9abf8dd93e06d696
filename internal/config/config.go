package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every setting the notification engine reads from the environment.
type Config struct {
	Port        string   `env:"PORT" envDefault:"8080"`
	MongoURI    string   `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB     string   `env:"MONGO_DB" envDefault:"skinsociete"`
	JWTSecret   string   `env:"JWT_SECRET,required"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	DefaultTimezone string `env:"DEFAULT_TIMEZONE" envDefault:"UTC"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"behavior-events"`
	KafkaGroup   string   `env:"KAFKA_GROUP" envDefault:"notification-engine"`

	FCMCredentialsFile string `env:"FCM_CREDENTIALS_FILE"`
	APNSKeyFile        string `env:"APNS_KEY_FILE"`
	APNSKeyID          string `env:"APNS_KEY_ID"`
	APNSTeamID         string `env:"APNS_TEAM_ID"`
	APNSTopic          string `env:"APNS_TOPIC"`
	APNSProduction     bool   `env:"APNS_PRODUCTION" envDefault:"false"`
	PushRatePerSec     int    `env:"PUSH_RATE_PER_SEC" envDefault:"50"`
	AndroidChannelID   string `env:"ANDROID_CHANNEL_ID" envDefault:"skin_societe_default"`
	AndroidColor       string `env:"ANDROID_COLOR" envDefault:"#D4A5A5"`

	StreakResetPolicy     string        `env:"STREAK_RESET_POLICY" envDefault:"gap"`
	StreakProtectionHours []int         `env:"STREAK_PROTECTION_HOURS" envSeparator:"," envDefault:"18,21"`
	SchedulerEnabled      bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	SweepTimeout          time.Duration `env:"SWEEP_TIMEOUT" envDefault:"4m"`
	ShutdownTimeout       time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// LoadConfig reads an optional .env file and parses the environment into Config.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, relying on system env vars")
	}

	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.StreakResetPolicy) {
	case "gap", "none":
	default:
		return fmt.Errorf("invalid STREAK_RESET_POLICY %q: want gap or none", c.StreakResetPolicy)
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	for _, h := range c.StreakProtectionHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("invalid STREAK_PROTECTION_HOURS entry %d", h)
		}
	}
	if c.PushRatePerSec <= 0 {
		return fmt.Errorf("PUSH_RATE_PER_SEC must be positive")
	}
	return nil
}

// Location returns the fallback timezone for users without one.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
