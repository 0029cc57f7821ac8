package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{"--db-path", "postgres://localhost/aubus"})
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.ListenPort)
	require.Equal(t, 3, cfg.FanoutWidth)
	require.Equal(t, ":9090", cfg.AdminHTTPAddr)
	require.Equal(t, 60*time.Second, cfg.PendingTimeout())
	require.Equal(t, 120*time.Second, cfg.ConfirmTimeout())
	require.Equal(t, 10*time.Second, cfg.SweepInterval())
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load([]string{
		"--db-path", "postgres://localhost/aubus",
		"--listen-port", "9999",
		"--fanout-width", "5",
		"--pending-timeout-seconds", "30",
	})
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.ListenPort)
	require.Equal(t, 5, cfg.FanoutWidth)
	require.Equal(t, 30*time.Second, cfg.PendingTimeout())
}

func TestLoad_MissingDBPath(t *testing.T) {
	_, err := Load([]string{"--listen-port", "7070"})
	require.Error(t, err)
}
