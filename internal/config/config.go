package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the frozen process configuration. It is built once at startup
// and passed by value; nothing mutates it afterwards.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Admin    AdminConfig
	Rate     RateConfig
	Verifier VerifierConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig carries the Redis endpoint plus the two ACL principals.
// The validator principal is restricted by the store's ACL layer to the
// read path (key fetch, rate increment, audit append, usage bump); the
// manager principal holds the admin write surface.
type StoreConfig struct {
	Host               string
	Port               int
	DBIndex            int
	PoolSize           int
	ValidatorPrincipal string
	ValidatorSecret    string
	ManagerPrincipal   string
	ManagerSecret      string
}

func (c StoreConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AdminConfig struct {
	// SharedSecret gates the admin endpoints. Empty means admin endpoints
	// answer 503 until one is configured.
	SharedSecret string
}

type RateConfig struct {
	RequestsPerMinute int
	CounterTTL        time.Duration
}

type VerifierConfig struct {
	TimeCost    uint32
	MemoryKiB   uint32
	Parallelism uint8
}

type LogConfig struct {
	Level string
}

// Load reads configuration from the environment (KEYMANAGER_ prefix, dotted
// keys mapped to underscores: store.host -> KEYMANAGER_STORE_HOST) with
// defaults for every knob.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KEYMANAGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 5)
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	v.SetDefault("store.host", "localhost")
	v.SetDefault("store.port", 6379)
	v.SetDefault("store.db_index", 0)
	v.SetDefault("store.pool_size", 10)
	v.SetDefault("store.validator_principal", "validator")
	v.SetDefault("store.validator_secret", "")
	v.SetDefault("store.manager_principal", "manager")
	v.SetDefault("store.manager_secret", "")

	v.SetDefault("admin.shared_secret", "")

	v.SetDefault("rate.requests_per_minute", 100)
	v.SetDefault("rate.counter_ttl_seconds", 120)

	v.SetDefault("verifier.time_cost", 3)
	v.SetDefault("verifier.memory_kib", 64*1024)
	v.SetDefault("verifier.parallelism", 1)

	v.SetDefault("log.level", "info")

	cfg := Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			RequestTimeout:  time.Duration(v.GetInt("server.request_timeout_seconds")) * time.Second,
			ShutdownTimeout: time.Duration(v.GetInt("server.shutdown_timeout_seconds")) * time.Second,
		},
		Store: StoreConfig{
			Host:               v.GetString("store.host"),
			Port:               v.GetInt("store.port"),
			DBIndex:            v.GetInt("store.db_index"),
			PoolSize:           v.GetInt("store.pool_size"),
			ValidatorPrincipal: v.GetString("store.validator_principal"),
			ValidatorSecret:    v.GetString("store.validator_secret"),
			ManagerPrincipal:   v.GetString("store.manager_principal"),
			ManagerSecret:      v.GetString("store.manager_secret"),
		},
		Admin: AdminConfig{
			SharedSecret: v.GetString("admin.shared_secret"),
		},
		Rate: RateConfig{
			RequestsPerMinute: v.GetInt("rate.requests_per_minute"),
			CounterTTL:        time.Duration(v.GetInt("rate.counter_ttl_seconds")) * time.Second,
		},
		Verifier: VerifierConfig{
			TimeCost:    v.GetUint32("verifier.time_cost"),
			MemoryKiB:   v.GetUint32("verifier.memory_kib"),
			Parallelism: uint8(v.GetUint32("verifier.parallelism")),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Rate.RequestsPerMinute < 1 {
		return fmt.Errorf("rate.requests_per_minute must be >= 1, got %d", c.Rate.RequestsPerMinute)
	}
	// TTL must outlive the window but stay bounded so stale counters evaporate.
	if c.Rate.CounterTTL <= 60*time.Second || c.Rate.CounterTTL > 300*time.Second {
		return fmt.Errorf("rate.counter_ttl_seconds must be in (60, 300], got %s", c.Rate.CounterTTL)
	}
	if c.Verifier.TimeCost < 1 || c.Verifier.MemoryKiB < 8 || c.Verifier.Parallelism < 1 {
		return fmt.Errorf("verifier parameters out of range")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
