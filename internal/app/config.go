package app

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // zone data for minimal images

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store and session drivers
const (
	DriverFile   = "file"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config is the runtime configuration of the calendar service.
type Config struct {
	Port          int
	EditMode      bool
	DataFile      string
	SeedFile      string
	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	SessionDriver string
	RedisAddr     string
	SessionTTL    time.Duration

	MapAccessToken string
	MapProvider    string

	Timezone    string
	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
	LogMode     string
	AuthFile    string
}

// EnvPrefix namespaces environment variables, e.g. TIFFIX_PORT.
const EnvPrefix = "TIFFIX"

// LoadConfig reads defaults, an optional .env file and TIFFIX_* environment
// variables. envFile may be empty.
func LoadConfig(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("config.godotenv(%s): %w", envFile, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config.os.Stat(%s): %w", envFile, err)
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("port", 8080)
	v.SetDefault("edit_mode", false)
	v.SetDefault("data_file", "orders.json")
	v.SetDefault("seed_file", "data/orders.yaml")
	v.SetDefault("store_driver", DriverFile)
	v.SetDefault("mongo_uri", "")
	v.SetDefault("mongo_database", "tiffix")
	v.SetDefault("session_driver", DriverMemory)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("session_ttl", 12*time.Hour)
	v.SetDefault("map_access_token", "")
	v.SetDefault("map_provider", "mapbox")
	v.SetDefault("timezone", "Asia/Kolkata")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("rate_limit", 20.0)
	v.SetDefault("rate_burst", 40)
	v.SetDefault("log_mode", "dev")
	v.SetDefault("auth_file", "auth.secret")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	cfg := Config{
		Port:           v.GetInt("port"),
		EditMode:       v.GetBool("edit_mode"),
		DataFile:       v.GetString("data_file"),
		SeedFile:       v.GetString("seed_file"),
		StoreDriver:    strings.ToLower(v.GetString("store_driver")),
		MongoURI:       v.GetString("mongo_uri"),
		MongoDatabase:  v.GetString("mongo_database"),
		SessionDriver:  strings.ToLower(v.GetString("session_driver")),
		RedisAddr:      v.GetString("redis_addr"),
		SessionTTL:     v.GetDuration("session_ttl"),
		MapAccessToken: v.GetString("map_access_token"),
		MapProvider:    v.GetString("map_provider"),
		Timezone:       v.GetString("timezone"),
		CORSOrigins:    splitList(v.GetStringSlice("cors_origins")),
		RateLimit:      v.GetFloat64("rate_limit"),
		RateBurst:      v.GetInt("rate_burst"),
		LogMode:        v.GetString("log_mode"),
		AuthFile:       v.GetString("auth_file"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects unknown drivers and bad ports.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.StoreDriver {
	case DriverFile:
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("store driver %q needs %s_MONGO_URI", c.StoreDriver, EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	switch c.SessionDriver {
	case DriverMemory, DriverRedis:
	default:
		return fmt.Errorf("unknown session driver %q", c.SessionDriver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone, used to decide what "today" is.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// splitList accepts both ["a","b"] and a single comma-separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
