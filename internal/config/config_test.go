package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	pc, err := cfg.BuildProtocol()
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Ratio(1, 100), pc.PPV)
	assert.Equal(t, fixedpoint.Ratio(15, 100), pc.HostShare)
	assert.Equal(t, fixedpoint.Ratio(5, 100), pc.ProtocolShare)
	assert.Equal(t, wager.ProviderLocal, pc.ActiveProvider)
	assert.Equal(t, uint64(250), pc.WithdrawDelay)
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := writeFile(t, "wagerd.yaml", `
server:
  addr: ":9090"
storage:
  driver: bolt
  bolt_path: /tmp/wager.db
chain:
  source: clock
  block_interval: 5s
  genesis: 2025-06-01T00:00:00Z
protocol:
  ppv: "0.02"
  edge_mode: bonus
  resolvers: [keeper-a, keeper-b]
ledger:
  grants:
    - account: alice
      amount: "1000"
`)
	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, DriverBolt, cfg.Storage.Driver)
	assert.Equal(t, 5*time.Second, cfg.Chain.BlockInterval)
	assert.Equal(t, 2025, cfg.Chain.Genesis.Year())
	assert.Equal(t, []string{"keeper-a", "keeper-b"}, cfg.Protocol.Resolvers)
	require.Len(t, cfg.Ledger.Grants, 1)

	pc, err := cfg.BuildProtocol()
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Ratio(2, 100), pc.PPV)
	assert.Equal(t, wager.EdgeModeBonus, pc.EdgeMode)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WAGER_HTTP_ADDR", ":7070")
	t.Setenv("WAGER_PPV", "0.05")
	t.Setenv("WAGER_RESOLVERS", "k1,k2")
	t.Setenv("WAGER_LOG_LEVEL", "debug")
	t.Setenv("WAGER_WITHDRAW_DELAY", "10")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "0.05", cfg.Protocol.PPV)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Protocol.Resolvers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, uint64(10), cfg.Protocol.WithdrawDelay)
}

func TestEnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "WAGER_METRICS_NAMESPACE=fromdotenv\n")
	t.Cleanup(func() { os.Unsetenv("WAGER_METRICS_NAMESPACE") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "fromdotenv", cfg.Metrics.Namespace)

	_, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err, "a missing env file is not an error")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "server: [\n"), "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"no addr":            func(c *Config) { c.Server.Addr = "" },
		"no auth":            func(c *Config) { c.Auth.JWTSecret = "" },
		"postgres no dsn":    func(c *Config) { c.Storage.Driver = DriverPostgres },
		"bolt no path":       func(c *Config) { c.Storage.Driver = DriverBolt },
		"unknown storage":    func(c *Config) { c.Storage.Driver = "mongo" },
		"pg ledger no dsn":   func(c *Config) { c.Ledger.Driver = DriverPostgres },
		"unknown ledger":     func(c *Config) { c.Ledger.Driver = "chain" },
		"bad grant":          func(c *Config) { c.Ledger.Grants = []Grant{{Account: "a", Amount: "x"}} },
		"grant no account":   func(c *Config) { c.Ledger.Grants = []Grant{{Amount: "1"}} },
		"rpc no url":         func(c *Config) { c.Chain.Source = ChainRPC },
		"unknown chain":      func(c *Config) { c.Chain.Source = "eth" },
		"ppv out of bounds":  func(c *Config) { c.Protocol.PPV = "0.5" },
		"ppv missing":        func(c *Config) { c.Protocol.PPV = "" },
		"ppv negative":       func(c *Config) { c.Protocol.PPV = "-0.01" },
		"zero max units":     func(c *Config) { c.Protocol.MaxUnitCount = 0 },
		"unknown provider":   func(c *Config) { c.Protocol.ActiveProvider = "dice" },
		"vrf disabled":       func(c *Config) { c.Protocol.ActiveProvider = string(wager.ProviderVRF) },
		"oracle disabled":    func(c *Config) { c.Protocol.ActiveProvider = string(wager.ProviderOracle) },
		"oracle no endpoint": func(c *Config) { c.Oracle.Enabled = true },
		"no event buffer":    func(c *Config) { c.Events.BufferSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsEnabledProviders(t *testing.T) {
	cfg := Default()
	cfg.VRF.Enabled = true
	cfg.Protocol.ActiveProvider = string(wager.ProviderVRF)
	require.NoError(t, cfg.Validate())

	cfg.Oracle.Enabled = true
	cfg.Oracle.Endpoint = "http://oracle.local/requests"
	cfg.Protocol.ActiveProvider = string(wager.ProviderOracle)
	require.NoError(t, cfg.Validate())

	pc, err := cfg.BuildProtocol()
	require.NoError(t, err)
	assert.Equal(t, "http://oracle.local/requests", pc.Providers.Oracle.Endpoint)
	assert.Equal(t, "oracle-node", pc.Providers.Oracle.Identity)
	assert.Equal(t, uint32(2_500_000), pc.Providers.VRF.CallbackGasLimit)
}
