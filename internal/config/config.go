package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// EngineConfig holds the adherence engine tuning parameters.
// The cultural weights are heuristics; they are configuration, not
// validated clinical constants.
type EngineConfig struct {
	LateThreshold        time.Duration // taken after this counts as late rather than on time
	EarlyTolerance       time.Duration // taken earlier than this is rejected
	PrayerBuffer         time.Duration // buffer around each daily prayer window
	FridayBuffer         time.Duration // wider buffer around the weekly congregational prayer
	DayStartHour         int           // allowed reminder range start
	DayEndHour           int           // allowed reminder range end
	SlotSearchStep       time.Duration // increment for alternative-slot search
	SlotSearchBound      time.Duration // how far the alternative-slot search reaches
	WindowDays           int           // rolling analysis window
	MinPatternEvents     int           // events required before patterns are trusted
	CacheTTL             time.Duration // profile cache entry lifetime
	RefreshInterval      time.Duration // background recompute cadence
	TimingPenaltyWeight  float64       // weight of lateness in the consistency score
	ReligiosityThreshold float64       // gate for the cultural risk adjustment
	DefaultRegion        string        // calendar region when the caller sends none
}

// SecurityConfig holds encryption configuration
type SecurityConfig struct {
	ProfileEncryptionKey string // 32 bytes, AES-256
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	// Bind specific environment variables
	bindEnvVars(v)

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.maxopenconns", 25)
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("database.connmaxlifetime", 5*time.Minute)

	// Engine defaults
	v.SetDefault("engine.latethreshold", 30*time.Minute)
	v.SetDefault("engine.earlytolerance", 2*time.Hour)
	v.SetDefault("engine.prayerbuffer", 15*time.Minute)
	v.SetDefault("engine.fridaybuffer", 45*time.Minute)
	v.SetDefault("engine.daystarthour", 8)
	v.SetDefault("engine.dayendhour", 18)
	v.SetDefault("engine.slotsearchstep", 30*time.Minute)
	v.SetDefault("engine.slotsearchbound", 4*time.Hour)
	v.SetDefault("engine.windowdays", 30)
	v.SetDefault("engine.minpatternevents", 10)
	v.SetDefault("engine.cachettl", 2*time.Hour)
	v.SetDefault("engine.refreshinterval", 60*time.Second)
	v.SetDefault("engine.timingpenaltyweight", 1.0)
	v.SetDefault("engine.religiositythreshold", 0.7)
	v.SetDefault("engine.defaultregion", "default")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")

	// Database
	v.BindEnv("database.url", "DATABASE_URL")

	// Engine
	v.BindEnv("engine.latethreshold", "ENGINE_LATE_THRESHOLD")
	v.BindEnv("engine.windowdays", "ENGINE_WINDOW_DAYS")
	v.BindEnv("engine.minpatternevents", "ENGINE_MIN_PATTERN_EVENTS")
	v.BindEnv("engine.cachettl", "ENGINE_CACHE_TTL")
	v.BindEnv("engine.refreshinterval", "ENGINE_REFRESH_INTERVAL")
	v.BindEnv("engine.religiositythreshold", "ENGINE_RELIGIOSITY_THRESHOLD")
	v.BindEnv("engine.defaultregion", "ENGINE_DEFAULT_REGION")

	// Security
	v.BindEnv("security.profileencryptionkey", "PROFILE_ENCRYPTION_KEY")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate required fields
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	if c.Security.ProfileEncryptionKey == "" {
		return fmt.Errorf("security.profileencryptionkey is required")
	}
	if len(c.Security.ProfileEncryptionKey) != 32 {
		return fmt.Errorf("security.profileencryptionkey must be exactly 32 bytes, got %d", len(c.Security.ProfileEncryptionKey))
	}

	if c.Engine.LateThreshold <= 0 {
		return fmt.Errorf("engine.latethreshold must be positive")
	}
	if c.Engine.WindowDays <= 0 {
		return fmt.Errorf("engine.windowdays must be positive")
	}
	if c.Engine.DayStartHour < 0 || c.Engine.DayEndHour > 24 || c.Engine.DayStartHour >= c.Engine.DayEndHour {
		return fmt.Errorf("engine day range %d-%d is invalid", c.Engine.DayStartHour, c.Engine.DayEndHour)
	}
	if c.Engine.ReligiosityThreshold < 0 || c.Engine.ReligiosityThreshold > 1 {
		return fmt.Errorf("engine.religiositythreshold must be in [0,1]")
	}

	return nil
}

// EngineDefaults returns an EngineConfig with the standard defaults, used by
// tests and the simulation CLI where no environment is loaded.
func EngineDefaults() EngineConfig {
	return EngineConfig{
		LateThreshold:        30 * time.Minute,
		EarlyTolerance:       2 * time.Hour,
		PrayerBuffer:         15 * time.Minute,
		FridayBuffer:         45 * time.Minute,
		DayStartHour:         8,
		DayEndHour:           18,
		SlotSearchStep:       30 * time.Minute,
		SlotSearchBound:      4 * time.Hour,
		WindowDays:           30,
		MinPatternEvents:     10,
		CacheTTL:             2 * time.Hour,
		RefreshInterval:      60 * time.Second,
		TimingPenaltyWeight:  1.0,
		ReligiosityThreshold: 0.7,
		DefaultRegion:        "default",
	}
}
