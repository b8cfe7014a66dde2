package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          string `yaml:"port"`
	DBDSN         string `yaml:"db_dsn"`
	LogFile       string `yaml:"log_file"`
	LogLevel      string `yaml:"log_level"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
	SeedDemo      bool   `yaml:"seed_demo"`

	HTTPTimeout time.Duration `yaml:"http_timeout"`

	PSABaseURL string  `yaml:"psa_base_url"`
	PSAToken   string  `yaml:"psa_token"`
	PSARPS     float64 `yaml:"psa_rps"`

	EbayAPIURL       string `yaml:"ebay_api_url"`
	EbayAuthURL      string `yaml:"ebay_auth_url"`
	EbayClientID     string `yaml:"ebay_client_id"`
	EbayClientSecret string `yaml:"ebay_client_secret"`
	EbayRuName       string `yaml:"ebay_runame"`
	EbayMarketplace  string `yaml:"ebay_marketplace"`

	// CertFreshness bounds how old a cached certification may be before it is refetched.
	CertFreshness time.Duration `yaml:"cert_freshness"`
	// CertStrict fails requests instead of serving stale certifications when PSA is unavailable.
	CertStrict bool `yaml:"cert_strict"`
}

func Defaults() Config {
	return Config{
		Port:            "8080",
		DBDSN:           "slabtrack.db", // sqlite file in project root
		LogFile:         "./slabtrack.log",
		LogLevel:        "info",
		LogMaxAgeDays:   14,
		HTTPTimeout:     15 * time.Second,
		PSABaseURL:      "https://api.psacard.com/publicapi",
		PSARPS:          2,
		EbayAPIURL:      "https://api.ebay.com",
		EbayAuthURL:     "https://auth.ebay.com/oauth2/authorize",
		EbayMarketplace: "EBAY_US",
		CertFreshness:   24 * time.Hour,
	}
}

// Load builds the config from defaults, then CONFIG_FILE (yaml), then the environment.
// A .env file in the working directory is loaded first when present.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] could not read .env: %v", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			log.Printf("[config] %v", err)
		}
	}
	applyEnv(&cfg)

	log.Printf("[config] PORT=%s DB_DSN=%s LOG_FILE=%s CERT_FRESHNESS=%s CERT_STRICT=%t",
		cfg.Port, cfg.DBDSN, cfg.LogFile, cfg.CertFreshness, cfg.CertStrict)
	return cfg
}

// LoadFile overlays the yaml document at path onto cfg. Keys missing from the file keep their value.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("cannot parse YAML: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DBDSN = getEnv("DB_DSN", cfg.DBDSN)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogMaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", cfg.LogMaxAgeDays)
	cfg.SeedDemo = getEnvBool("SEED_DEMO", cfg.SeedDemo)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)

	cfg.PSABaseURL = getEnv("PSA_BASE_URL", cfg.PSABaseURL)
	cfg.PSAToken = getEnv("PSA_TOKEN", cfg.PSAToken)
	cfg.PSARPS = getEnvFloat("PSA_RPS", cfg.PSARPS)

	cfg.EbayAPIURL = getEnv("EBAY_API_URL", cfg.EbayAPIURL)
	cfg.EbayAuthURL = getEnv("EBAY_AUTH_URL", cfg.EbayAuthURL)
	cfg.EbayClientID = getEnv("EBAY_CLIENT_ID", cfg.EbayClientID)
	cfg.EbayClientSecret = getEnv("EBAY_CLIENT_SECRET", cfg.EbayClientSecret)
	cfg.EbayRuName = getEnv("EBAY_RUNAME", cfg.EbayRuName)
	cfg.EbayMarketplace = getEnv("EBAY_MARKETPLACE", cfg.EbayMarketplace)

	cfg.CertFreshness = getEnvDuration("CERT_FRESHNESS", cfg.CertFreshness)
	cfg.CertStrict = getEnvBool("CERT_STRICT", cfg.CertStrict)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
