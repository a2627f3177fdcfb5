// Package config loads homenotes settings from an optional YAML file and
// HOMENOTES_* environment variables. The environment wins over the file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rohanthewiz/serr"
	"gopkg.in/yaml.v3"
)

// Remote store drivers.
const (
	RemoteMemory    = "memory"
	RemoteFile      = "file"
	RemoteRelay     = "relay"
	RemoteFirestore = "firestore"
)

// Cache drivers, matching localcache.
const (
	CacheSQLite = "sqlite"
	CacheDuckDB = "duckdb"
)

const minSecretLen = 32

type Config struct {
	Log    LogConfig    `yaml:"log"`
	Cache  CacheConfig  `yaml:"cache"`
	Remote RemoteConfig `yaml:"remote"`
	Auth   AuthConfig   `yaml:"auth"`
	Sync   SyncConfig   `yaml:"sync"`
	Web    WebConfig    `yaml:"web"`
	Relay  RelayConfig  `yaml:"relay"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// CacheConfig selects the local database. An empty Path keeps the durable cache in memory.
type CacheConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type RemoteConfig struct {
	Driver string `yaml:"driver"`
	// Dir is the document directory of the file driver.
	Dir string `yaml:"dir"`
	// URL and Token locate the relay (ws://host:port/ws).
	URL   string `yaml:"url"`
	Token string `yaml:"token"`

	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

type AuthConfig struct {
	Timeout   time.Duration `yaml:"auth_timeout"`
	JWTSecret string        `yaml:"jwt_secret"`
}

// SyncConfig holds the timing knobs of the reconcilers.
type SyncConfig struct {
	RemoteSaveDelay      time.Duration `yaml:"remote_save_delay"`
	SharedAutosave       time.Duration `yaml:"shared_autosave"`
	PresenceHeartbeat    time.Duration `yaml:"presence_heartbeat"`
	ShoppingTextDebounce time.Duration `yaml:"shopping_text_debounce"`
	ShoppingEchoBuffer   time.Duration `yaml:"shopping_echo_buffer"`
	ShoppingRetryInitial time.Duration `yaml:"shopping_retry_initial"`
	ShoppingMaxAttempts  int           `yaml:"shopping_max_attempts"`
	MealPlanApprovals    int           `yaml:"meal_plan_approvals"`
}

type WebConfig struct {
	Address string `yaml:"address"`
}

type RelayConfig struct {
	Address string `yaml:"address"`
}

// Default returns a config that runs entirely in memory.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info"},
		Cache:  CacheConfig{Driver: CacheSQLite},
		Remote: RemoteConfig{Driver: RemoteMemory},
		Auth:   AuthConfig{Timeout: 10 * time.Second},
		Sync: SyncConfig{
			RemoteSaveDelay:      time.Second,
			SharedAutosave:       500 * time.Millisecond,
			PresenceHeartbeat:    10 * time.Second,
			ShoppingTextDebounce: 200 * time.Millisecond,
			ShoppingEchoBuffer:   500 * time.Millisecond,
			ShoppingRetryInitial: time.Second,
			ShoppingMaxAttempts:  3,
			MealPlanApprovals:    1,
		},
		Web:   WebConfig{Address: ":8000"},
		Relay: RelayConfig{Address: ":8700"},
	}
}

// Load reads path (when non-empty) over the defaults, then applies the environment.
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, serr.Wrap(err, "failed to read config file", "path", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, serr.Wrap(err, "failed to parse config file", "path", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"HOMENOTES_LOG_LEVEL":             &c.Log.Level,
		"HOMENOTES_CACHE_DRIVER":          &c.Cache.Driver,
		"HOMENOTES_CACHE_PATH":            &c.Cache.Path,
		"HOMENOTES_REMOTE_DRIVER":         &c.Remote.Driver,
		"HOMENOTES_REMOTE_DIR":            &c.Remote.Dir,
		"HOMENOTES_REMOTE_URL":            &c.Remote.URL,
		"HOMENOTES_REMOTE_TOKEN":          &c.Remote.Token,
		"HOMENOTES_FIRESTORE_PROJECT":     &c.Remote.ProjectID,
		"HOMENOTES_FIRESTORE_CREDENTIALS": &c.Remote.CredentialsFile,
		"HOMENOTES_JWT_SECRET":            &c.Auth.JWTSecret,
		"HOMENOTES_WEB_ADDRESS":           &c.Web.Address,
		"HOMENOTES_RELAY_ADDRESS":         &c.Relay.Address,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"HOMENOTES_AUTH_TIMEOUT":           &c.Auth.Timeout,
		"HOMENOTES_REMOTE_SAVE_DELAY":      &c.Sync.RemoteSaveDelay,
		"HOMENOTES_SHARED_AUTOSAVE":        &c.Sync.SharedAutosave,
		"HOMENOTES_PRESENCE_HEARTBEAT":     &c.Sync.PresenceHeartbeat,
		"HOMENOTES_SHOPPING_TEXT_DEBOUNCE": &c.Sync.ShoppingTextDebounce,
		"HOMENOTES_SHOPPING_ECHO_BUFFER":   &c.Sync.ShoppingEchoBuffer,
	}
	for name, dst := range durations {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return serr.Wrap(err, "invalid "+name+" value, expected duration like '500ms' or '10s'")
		}
		*dst = d
	}

	if v := os.Getenv("HOMENOTES_MEAL_PLAN_APPROVALS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return serr.Wrap(err, "invalid HOMENOTES_MEAL_PLAN_APPROVALS value, expected an integer")
		}
		c.Sync.MealPlanApprovals = n
	}
	return nil
}

// Validate fails fast on settings the app cannot start with.
func (c *Config) Validate() error {
	switch c.Cache.Driver {
	case CacheSQLite, CacheDuckDB:
	default:
		return serr.New("unknown cache driver", "driver", c.Cache.Driver)
	}

	switch c.Remote.Driver {
	case RemoteMemory:
	case RemoteFile:
		if c.Remote.Dir == "" {
			return serr.New("remote.dir is required for the file driver")
		}
	case RemoteRelay:
		if c.Remote.URL == "" {
			return serr.New("remote.url is required for the relay driver")
		}
	case RemoteFirestore:
		if c.Remote.ProjectID == "" {
			return serr.New("remote.project_id is required for the firestore driver")
		}
	default:
		return serr.New("unknown remote driver", "driver", c.Remote.Driver)
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minSecretLen {
		return serr.New("jwt_secret must be at least 32 characters")
	}

	durations := map[string]time.Duration{
		"auth_timeout":           c.Auth.Timeout,
		"remote_save_delay":      c.Sync.RemoteSaveDelay,
		"shared_autosave":        c.Sync.SharedAutosave,
		"presence_heartbeat":     c.Sync.PresenceHeartbeat,
		"shopping_text_debounce": c.Sync.ShoppingTextDebounce,
		"shopping_echo_buffer":   c.Sync.ShoppingEchoBuffer,
		"shopping_retry_initial": c.Sync.ShoppingRetryInitial,
	}
	for name, d := range durations {
		if d <= 0 {
			return serr.New(name + " must be positive")
		}
	}
	if c.Sync.ShoppingMaxAttempts < 1 {
		return serr.New("shopping_max_attempts must be at least 1")
	}
	if c.Sync.MealPlanApprovals < 1 {
		return serr.New("meal_plan_approvals must be at least 1")
	}
	if c.Web.Address == "" {
		return serr.New("web.address is required")
	}
	return nil
}
