// Package config handles application configuration from environment variables,
// an optional .env file and an optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSharedKeyURL publishes the shared decryption keys as a JSON map.
const DefaultSharedKeyURL = "https://raw.githubusercontent.com/yogesh-hacker/MegacloudKeys/refs/heads/main/keys.json"

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Authentication
	APIPassword string

	// Proxy settings
	GlobalProxies   []string
	TransportRoutes []TransportRoute

	// Extraction settings
	HTTPTimeout              time.Duration
	ServerTimeout            time.Duration
	MaxConcurrentExtractions int
	DecryptMaxAttempts       int
	SharedKeyURL             string
	KeyStorePath             string
	RabbitstreamScriptURL    string

	// Logging
	LogLevel string
	LogJSON  bool

	// FlareSolverr settings (for Cloudflare bypass)
	FlareSolverrURL     string
	FlareSolverrTimeout time.Duration
}

// TransportRoute defines URL-specific proxy routing.
type TransportRoute struct {
	URLPattern string `yaml:"url"`
	Proxy      string `yaml:"proxy"`
	DisableSSL bool   `yaml:"disable_ssl"`
	Direct     bool   `yaml:"direct"` // If true, bypass global proxy and connect directly
}

// fileConfig mirrors the subset of Config that may be set from a YAML file.
// Zero values leave the environment value in place.
type fileConfig struct {
	Port                     int              `yaml:"port"`
	LogLevel                 string           `yaml:"log_level"`
	LogJSON                  *bool            `yaml:"log_json"`
	APIPassword              string           `yaml:"api_password"`
	GlobalProxies            []string         `yaml:"global_proxies"`
	TransportRoutes          []TransportRoute `yaml:"transport_routes"`
	HTTPTimeout              string           `yaml:"http_timeout"`
	ServerTimeout            string           `yaml:"server_timeout"`
	MaxConcurrentExtractions int              `yaml:"max_concurrent_extractions"`
	DecryptMaxAttempts       int              `yaml:"decrypt_max_attempts"`
	SharedKeyURL             string           `yaml:"shared_key_url"`
	KeyStorePath             string           `yaml:"key_store_path"`
	RabbitstreamScriptURL    string           `yaml:"rabbitstream_script_url"`
	FlareSolverrURL          string           `yaml:"flaresolverr_url"`
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is loaded first when present, and
// CONFIG_FILE may point at a YAML file whose values override the environment.
func Load() (*Config, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	port := getEnvInt("PORT", 7860)
	cfg := &Config{
		Port:                     port,
		BaseURL:                  getEnvString("BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		ReadTimeout:              getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:             getEnvDuration("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:              getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		APIPassword:              os.Getenv("API_PASSWORD"),
		GlobalProxies:            getEnvStringSlice("GLOBAL_PROXIES", nil),
		HTTPTimeout:              getEnvDuration("HTTP_TIMEOUT", 15*time.Second),
		ServerTimeout:            getEnvDuration("SERVER_TIMEOUT", 45*time.Second),
		MaxConcurrentExtractions: getEnvInt("MAX_CONCURRENT_EXTRACTIONS", 4),
		DecryptMaxAttempts:       getEnvInt("DECRYPT_MAX_ATTEMPTS", 3),
		SharedKeyURL:             getEnvString("SHARED_KEY_URL", DefaultSharedKeyURL),
		KeyStorePath:             getEnvString("KEY_STORE_PATH", ""),
		RabbitstreamScriptURL:    getEnvString("RABBITSTREAM_SCRIPT_URL", ""),
		LogLevel:                 getEnvString("LOG_LEVEL", "info"),
		LogJSON:                  getEnvBool("LOG_JSON", false),
		FlareSolverrURL:          getEnvString("FLARESOLVERR_URL", ""),
		FlareSolverrTimeout:      getEnvDuration("FLARESOLVERR_TIMEOUT", 60*time.Second),
	}

	cfg.TransportRoutes = parseTransportRoutes(os.Getenv("TRANSPORT_ROUTES"))

	// Legacy single proxy support
	if globalProxy := os.Getenv("GLOBAL_PROXY"); globalProxy != "" && len(cfg.GlobalProxies) == 0 {
		cfg.GlobalProxies = []string{globalProxy}
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.applyYAML(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.normalize()
	return cfg, nil
}

// applyYAML overlays non-zero values from a YAML document.
func (c *Config) applyYAML(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	if fc.Port != 0 {
		c.Port = fc.Port
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.LogJSON != nil {
		c.LogJSON = *fc.LogJSON
	}
	if fc.APIPassword != "" {
		c.APIPassword = fc.APIPassword
	}
	if len(fc.GlobalProxies) > 0 {
		c.GlobalProxies = fc.GlobalProxies
	}
	if len(fc.TransportRoutes) > 0 {
		c.TransportRoutes = fc.TransportRoutes
	}
	if fc.HTTPTimeout != "" {
		d, err := time.ParseDuration(fc.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("http_timeout: %w", err)
		}
		c.HTTPTimeout = d
	}
	if fc.ServerTimeout != "" {
		d, err := time.ParseDuration(fc.ServerTimeout)
		if err != nil {
			return fmt.Errorf("server_timeout: %w", err)
		}
		c.ServerTimeout = d
	}
	if fc.MaxConcurrentExtractions != 0 {
		c.MaxConcurrentExtractions = fc.MaxConcurrentExtractions
	}
	if fc.DecryptMaxAttempts != 0 {
		c.DecryptMaxAttempts = fc.DecryptMaxAttempts
	}
	if fc.SharedKeyURL != "" {
		c.SharedKeyURL = fc.SharedKeyURL
	}
	if fc.KeyStorePath != "" {
		c.KeyStorePath = fc.KeyStorePath
	}
	if fc.RabbitstreamScriptURL != "" {
		c.RabbitstreamScriptURL = fc.RabbitstreamScriptURL
	}
	if fc.FlareSolverrURL != "" {
		c.FlareSolverrURL = fc.FlareSolverrURL
	}
	return nil
}

// normalize clamps values that would break the pipeline.
func (c *Config) normalize() {
	if c.MaxConcurrentExtractions < 1 {
		c.MaxConcurrentExtractions = 1
	}
	if c.DecryptMaxAttempts < 1 {
		c.DecryptMaxAttempts = 1
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
}

// parseTransportRoutes parses the TRANSPORT_ROUTES env var.
// Format: {URL=pattern, PROXY=url, DISABLE_SSL=true}, {URL=pattern2}
func parseTransportRoutes(s string) []TransportRoute {
	if s == "" {
		return nil
	}

	var routes []TransportRoute
	for _, part := range strings.Split(strings.TrimSpace(s), "}, {") {
		part = strings.Trim(part, "{} ")
		if part == "" {
			continue
		}

		route := TransportRoute{}
		for _, field := range strings.Split(part, ", ") {
			kv := strings.SplitN(field, "=", 2)
			if len(kv) != 2 {
				continue
			}
			value := strings.TrimSpace(kv[1])

			switch strings.ToUpper(strings.TrimSpace(kv[0])) {
			case "URL":
				route.URLPattern = value
			case "PROXY":
				route.Proxy = value
			case "DISABLE_SSL":
				route.DisableSSL = strings.EqualFold(value, "true")
			case "DIRECT":
				route.Direct = strings.EqualFold(value, "true")
			}
		}
		if route.URLPattern != "" {
			routes = append(routes, route)
		}
	}

	return routes
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Plain integers are seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultVal
}
