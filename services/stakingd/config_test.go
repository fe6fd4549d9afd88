package stakingd

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nftstake/storage"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadExampleConfig(t *testing.T) {
	t.Setenv("STAKINGD_JWT_SECRET", "from-env")
	cfg, err := LoadConfig("config.example.yaml")
	require.NoError(t, err)

	require.Equal(t, ":7090", cfg.ListenAddress)
	require.Equal(t, storage.BackendLevelDB, cfg.Storage.Backend)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "from-env", cfg.Auth.Secret)
	require.Equal(t, 2*time.Minute, cfg.Auth.ClockSkew.Duration)
	require.Equal(t, RateLimitConfig{RequestsPerMinute: 30, Burst: 5}, cfg.RateLimits[routeGroupAdmin])
	require.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration)
	require.Equal(t, 0.25, cfg.Telemetry.SampleRatio)
	require.Equal(t, 30*time.Second, cfg.Telemetry.MetricInterval.Duration)

	supply, err := cfg.Rewards.Cap()
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000_000), supply)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)

	require.Equal(t, ":7090", cfg.ListenAddress)
	require.Equal(t, "data/stakingd/ledger", cfg.Storage.Path)
	require.Equal(t, "data/stakingd/events.db", cfg.Journal.Path)
	require.Equal(t, 100, cfg.Journal.PageLimit)
	require.Equal(t, "stakingd", cfg.Auth.Issuer)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "STK", cfg.Rewards.Symbol)
	require.Contains(t, cfg.RateLimits, routeGroupLedger)
	require.Contains(t, cfg.RateLimits, routeGroupAdmin)

	supply, err := cfg.Rewards.Cap()
	require.NoError(t, err)
	require.Nil(t, supply)
}

func TestLoadConfigMemoryBackendHasNoPath(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "storage:\n  backend: memory\n"))
	require.NoError(t, err)
	require.Empty(t, cfg.Storage.Path)
}

func TestLoadConfigSecretFile(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("  file-secret\n"), 0o600))
	cfg, err := LoadConfig(writeConfig(t, "auth:\n  enabled: true\n  secret_file: "+secretPath+"\n"))
	require.NoError(t, err)
	require.Equal(t, "file-secret", cfg.Auth.Secret)
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":          "listen: \":1\"\nbogus: true\n",
		"bad duration":         "server:\n  read_timeout: soon\n",
		"unknown backend":      "storage:\n  backend: rocksdb\n",
		"auth without secret":  "auth:\n  enabled: true\n",
		"empty secret env":     "auth:\n  enabled: true\n  secret_env: STAKINGD_TEST_UNSET_SECRET\n",
		"negative supply cap":  "rewards:\n  supply_cap: \"-5\"\n",
		"negative rate limit":  "rate_limits:\n  ledger:\n    requests_per_minute: -1\n",
		"non-numeric supply":   "rewards:\n  supply_cap: lots\n",
		"sample ratio above 1": "telemetry:\n  sample_ratio: 1.5\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, contents))
			require.Error(t, err)
		})
	}
}
