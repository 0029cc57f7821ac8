// Package config resolves the server's settings from CLI flags (the
// contract of record, §6), optionally layered with a YAML file and
// AUBUS_*-prefixed environment variables via viper. Flags always win.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved set of settings main wires the server with.
type Config struct {
	ListenPort            int
	DBPath                string
	MapEndpoint           string
	PendingTimeoutSeconds int
	ConfirmTimeoutSeconds int
	FanoutWidth           int
	AdminHTTPAddr         string
	AMQPURL               string
	RedisURL              string
	SweepIntervalSeconds  int
}

func (c Config) PendingTimeout() time.Duration {
	return time.Duration(c.PendingTimeoutSeconds) * time.Second
}

func (c Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// Load parses args against the §6 flag set, then fills any flag not given on
// the command line from an optional --config YAML file or AUBUS_* environment
// variables, falling back to the flag default, the same precedence order the
// Hintro project's viper layering uses.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("aubus", flag.ContinueOnError)

	listenPort := fs.Int("listen-port", 7070, "TCP port the Protocol Gateway listens on")
	dbPath := fs.String("db-path", "", "relational store DSN (postgres:// connection string)")
	mapEndpoint := fs.String("map-endpoint", "", "external map/geocoding service base URL")
	pendingTimeout := fs.Int("pending-timeout-seconds", 60, "T_pending: seconds a driver has to answer an offer")
	confirmTimeout := fs.Int("confirm-timeout-seconds", 120, "T_confirm: seconds a rider has to confirm an accepted candidate")
	fanoutWidth := fs.Int("fanout-width", 3, "K: number of candidates held PENDING at once")
	configFile := fs.String("config", "", "optional YAML config file")
	adminHTTPAddr := fs.String("admin-http-addr", ":9090", "ops HTTP listener (/ready, /healthz, /metrics)")
	amqpURL := fs.String("amqp-url", "", "optional AMQP broker URL for event bus publishing")
	redisURL := fs.String("redis-url", "", "optional Redis URL for the geo index; falls back to in-memory")
	sweepInterval := fs.Int("sweep-interval-seconds", 10, "T_sweep: cadence of the timeout sweep")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("aubus")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", *configFile, err)
		}
	}

	fs.Visit(func(f *flag.Flag) { v.Set(f.Name, f.Value.String()) })

	cfg := Config{
		ListenPort:            intOr(v, "listen-port", *listenPort),
		DBPath:                stringOr(v, "db-path", *dbPath),
		MapEndpoint:           stringOr(v, "map-endpoint", *mapEndpoint),
		PendingTimeoutSeconds: intOr(v, "pending-timeout-seconds", *pendingTimeout),
		ConfirmTimeoutSeconds: intOr(v, "confirm-timeout-seconds", *confirmTimeout),
		FanoutWidth:           intOr(v, "fanout-width", *fanoutWidth),
		AdminHTTPAddr:         stringOr(v, "admin-http-addr", *adminHTTPAddr),
		AMQPURL:               stringOr(v, "amqp-url", *amqpURL),
		RedisURL:              stringOr(v, "redis-url", *redisURL),
		SweepIntervalSeconds:  intOr(v, "sweep-interval-seconds", *sweepInterval),
	}

	if cfg.DBPath == "" {
		return Config{}, fmt.Errorf("--db-path is required")
	}
	return cfg, nil
}

func intOr(v *viper.Viper, key string, fallback int) int {
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	return fallback
}

func stringOr(v *viper.Viper, key string, fallback string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return fallback
}
