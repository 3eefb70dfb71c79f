package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds runtime configuration. Precedence, highest first:
// explicit CLI overrides, the TOML config file, environment variables,
// then built-in defaults.
type Config struct {
	DatabaseURL    string
	Port           string
	DataDir        string
	SecureCookies  bool
	TrustedOrigins []string
	GeoIPDB        string
	MinSampleSize  int
}

// DefaultMinSampleSize is the combined sample floor below which
// significance results are reported as inconclusive.
const DefaultMinSampleSize = 30

// newBaseViper creates a viper instance pointed at the config file
// locations: ./varianta.toml, then $XDG_CONFIG_HOME/varianta/.
func newBaseViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("varianta")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome != "" {
		v.AddConfigPath(filepath.Join(configHome, "varianta"))
	}

	return v
}

// Load reads configuration from the config file and environment.
func Load() (*Config, error) {
	v := newBaseViper()
	_ = v.ReadInConfig() // missing file is fine, env and defaults cover it

	cfg := &Config{
		Port:          "3000",
		DataDir:       "./data",
		SecureCookies: true,
		MinSampleSize: DefaultMinSampleSize,
	}

	cfg.DatabaseURL = stringSetting(v, "database_url", "DATABASE_URL", cfg.DatabaseURL)
	cfg.DataDir = stringSetting(v, "data_dir", "DATA_DIR", cfg.DataDir)
	cfg.GeoIPDB = stringSetting(v, "geoip_db", "GEOIP_DB", cfg.GeoIPDB)

	// SaveConfig nests the port under [server]; accept both spellings
	switch {
	case v.IsSet("port"):
		cfg.Port = v.GetString("port")
	case v.IsSet("server.port"):
		cfg.Port = v.GetString("server.port")
	case os.Getenv("PORT") != "":
		cfg.Port = os.Getenv("PORT")
	}

	switch {
	case v.IsSet("secure_cookies"):
		cfg.SecureCookies = v.GetBool("secure_cookies")
	case os.Getenv("SECURE_COOKIES") != "":
		if parsed, err := strconv.ParseBool(os.Getenv("SECURE_COOKIES")); err == nil {
			cfg.SecureCookies = parsed
		}
	}

	if origins := stringSetting(v, "trusted_origins", "TRUSTED_ORIGINS", ""); origins != "" {
		cfg.TrustedOrigins = parseTrustedOrigins(origins)
	}

	if raw := stringSetting(v, "min_sample_size", "MIN_SAMPLE_SIZE", ""); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			cfg.MinSampleSize = parsed
		}
	}

	return cfg, nil
}

// LoadWithOverrides loads configuration and applies non-empty CLI flag
// values on top.
func LoadWithOverrides(databaseURL, port, dataDir string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if port != "" {
		cfg.Port = port
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	return cfg, nil
}

// stringSetting resolves one string value: config file key first, then
// environment variable, then the default.
func stringSetting(v *viper.Viper, key, envVar, fallback string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return fallback
}

// parseTrustedOrigins normalizes a comma-separated origin list.
// Schemes are preserved, trailing slashes stripped, everything lowercased.
func parseTrustedOrigins(raw string) []string {
	origins := []string{}
	for _, part := range strings.Split(raw, ",") {
		origin := strings.ToLower(strings.TrimSpace(part))
		origin = strings.TrimSuffix(origin, "/")
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}
