package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the process-level configuration, fixed for the lifetime of the
// process. Runtime-tunable settings (Wiegand widths, scan delay, entry/exit
// tracking, entity id) live in config.json and are managed separately.
type Config struct {
	Server  ServerConfig
	Paths   PathsConfig
	Auth    AuthConfig
	Storage StorageConfig
	GPIO    GPIOConfig
	Wiegand WiegandConfig
	Remote  RemoteConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PathsConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

func (p PathsConfig) UsersFile() string       { return filepath.Join(p.BaseDir, "users.json") }
func (p PathsConfig) BlockedFile() string     { return filepath.Join(p.BaseDir, "blocked_users.json") }
func (p PathsConfig) DailyStatsFile() string  { return filepath.Join(p.BaseDir, "daily_stats.json") }
func (p PathsConfig) ConfigFile() string      { return filepath.Join(p.BaseDir, "config.json") }
func (p PathsConfig) FailedCacheFile() string {
	return filepath.Join(p.BaseDir, "failed_transactions_cache.jsonl")
}
func (p PathsConfig) TransactionsDir() string { return filepath.Join(p.BaseDir, "transactions") }
func (p PathsConfig) LogFile() string         { return filepath.Join(p.BaseDir, "access.log") }

type AuthConfig struct {
	AdminUsername     string        `mapstructure:"admin_username"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
	APIKey            string        `mapstructure:"api_key"`
	APIKeyRequired    bool          `mapstructure:"api_key_required"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
}

type StorageConfig struct {
	MaxTxStorageGB  float64       `mapstructure:"max_tx_storage_gb"`
	CleanupFraction float64       `mapstructure:"cleanup_fraction"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
}

func (s StorageConfig) MaxTxStorageBytes() int64 {
	return int64(s.MaxTxStorageGB * 1024 * 1024 * 1024)
}

// GPIOConfig carries the character-device chip name and BCM line offsets
// for the three relays and three reader pairs.
type GPIOConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Chip    string `mapstructure:"chip"`
	Relays  [3]int `mapstructure:"relays"`
	D0Pins  [3]int `mapstructure:"d0_pins"`
	D1Pins  [3]int `mapstructure:"d1_pins"`
}

// WiegandConfig holds the boot defaults; config.json overrides them once
// it exists.
type WiegandConfig struct {
	DefaultBits      [3]int `mapstructure:"default_bits"`
	TimeoutMS        int    `mapstructure:"timeout_ms"`
	ScanDelaySeconds int    `mapstructure:"scan_delay_seconds"`
	EntityID         string `mapstructure:"entity_id"`
}

type RemoteConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
	Timeout   time.Duration
}

type LoggingConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level"`
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.EqualFold(value, "true") || value == "1"
	}
	return defaultVal
}

// DefaultAdminPasswordHash is sha256("admin123"), kept for compatibility
// with deployments that never set ADMIN_PASSWORD_HASH.
const DefaultAdminPasswordHash = "240be518fabd2724ddb6f04eeb1da5967448d7e831c08c8fa822809f74c720a9"

// LoadConfigFromEnv builds the process config from environment variables,
// mirroring the variable names the appliance has always used.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("HTTP_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("HTTP_PORT", 5001),
			ReadTimeout:  time.Duration(getEnvAsInt("HTTP_READ_TIMEOUT_SECONDS", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvAsInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)) * time.Second,
			IdleTimeout:  time.Duration(getEnvAsInt("HTTP_IDLE_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Paths: PathsConfig{
			BaseDir: getEnv("BASE_DIR", "/home/maxpark"),
		},
		Auth: AuthConfig{
			AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", DefaultAdminPasswordHash),
			APIKey:            getEnv("API_KEY", ""),
			APIKeyRequired:    getEnvAsBool("API_KEY_REQUIRED", false),
			SessionTTL:        time.Duration(getEnvAsInt("SESSION_TTL_HOURS", 24)) * time.Hour,
		},
		Storage: StorageConfig{
			MaxTxStorageGB:  getEnvAsFloat("MAX_TX_STORAGE_GB", 16),
			CleanupFraction: getEnvAsFloat("CLEANUP_FRACTION", 0.5),
			CheckInterval:   time.Duration(getEnvAsInt("TX_STORAGE_CHECK_INTERVAL", 300)) * time.Second,
		},
		GPIO: GPIOConfig{
			Enabled: getEnvAsBool("GPIO_ENABLED", true),
			Chip:    getEnv("GPIO_CHIP", "gpiochip0"),
			Relays: [3]int{
				getEnvAsInt("RELAY_1", 25),
				getEnvAsInt("RELAY_2", 26),
				getEnvAsInt("RELAY_3", 27),
			},
			D0Pins: [3]int{
				getEnvAsInt("D0_PIN_1", 18),
				getEnvAsInt("D0_PIN_2", 19),
				getEnvAsInt("D0_PIN_3", 20),
			},
			D1Pins: [3]int{
				getEnvAsInt("D1_PIN_1", 23),
				getEnvAsInt("D1_PIN_2", 24),
				getEnvAsInt("D1_PIN_3", 21),
			},
		},
		Wiegand: WiegandConfig{
			DefaultBits: [3]int{
				getEnvAsInt("WIEGAND_BITS_READER_1", 26),
				getEnvAsInt("WIEGAND_BITS_READER_2", 26),
				getEnvAsInt("WIEGAND_BITS_READER_3", 26),
			},
			TimeoutMS:        getEnvAsInt("WIEGAND_TIMEOUT_MS", 25),
			ScanDelaySeconds: getEnvAsInt("SCAN_DELAY_SECONDS", 60),
			EntityID:         getEnv("ENTITY_ID", "default_entity"),
		},
		Remote: RemoteConfig{
			Enabled:   getEnvAsBool("REMOTE_ENABLED", true),
			Addresses: strings.Split(getEnv("ELASTICSEARCH_ADDRESSES", "http://localhost:9200"), ","),
			Username:  getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:  getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:     getEnv("ELASTICSEARCH_INDEX", "transactions"),
			Timeout:   time.Duration(getEnvAsInt("REMOTE_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		Logging: LoggingConfig{
			Env:   getEnv("APP_ENV", "production"),
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid http port: %d", c.Server.Port))
	}
	if c.Paths.BaseDir == "" {
		errs = append(errs, "base dir is required")
	}
	if c.Auth.AdminUsername == "" {
		errs = append(errs, "admin username is required")
	}
	if c.Auth.AdminPasswordHash == "" {
		errs = append(errs, "admin password hash is required")
	}
	if c.Auth.APIKeyRequired && c.Auth.APIKey == "" {
		errs = append(errs, "api key required but not set")
	}
	if c.Storage.MaxTxStorageGB <= 0 {
		errs = append(errs, "max tx storage must be positive")
	}
	if c.Storage.CleanupFraction <= 0 || c.Storage.CleanupFraction > 1 {
		errs = append(errs, "cleanup fraction must be in (0,1]")
	}
	for i, bits := range c.Wiegand.DefaultBits {
		if bits != 26 && bits != 34 {
			errs = append(errs, fmt.Sprintf("reader_%d: wiegand bits must be 26 or 34", i+1))
		}
	}
	if c.Wiegand.TimeoutMS < 10 || c.Wiegand.TimeoutMS > 100 {
		errs = append(errs, "wiegand timeout must be between 10 and 100 ms")
	}
	if c.Wiegand.ScanDelaySeconds < 1 || c.Wiegand.ScanDelaySeconds > 300 {
		errs = append(errs, "scan delay must be between 1 and 300 seconds")
	}
	if c.Wiegand.EntityID == "" {
		errs = append(errs, "entity id is required")
	}
	if c.Remote.Enabled && len(c.Remote.Addresses) == 0 {
		errs = append(errs, "remote enabled but no addresses configured")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
