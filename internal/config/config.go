// Package config loads wagerd configuration from YAML, an optional .env file
// and WAGER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/protocol"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// Storage and ledger drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

// Chain head sources.
const (
	ChainRPC    = "rpc"
	ChainClock  = "clock"
	ChainManual = "manual"
)

// DevJWTSecret is the secret Default ships with. wagerd warns when it is used.
const DevJWTSecret = "wager-dev-secret"

// Config is the full daemon configuration.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Logging  logger.LoggingConfig `yaml:"logging"`
	Auth     AuthConfig           `yaml:"auth"`
	Storage  StorageConfig        `yaml:"storage"`
	Ledger   LedgerConfig         `yaml:"ledger"`
	Chain    ChainConfig          `yaml:"chain"`
	Protocol ProtocolConfig       `yaml:"protocol"`
	VRF      VRFConfig            `yaml:"vrf"`
	Oracle   OracleConfig         `yaml:"oracle"`
	Events   EventsConfig         `yaml:"events"`
	Sweeper  SweeperConfig        `yaml:"sweeper"`
	Metrics  MetricsConfig        `yaml:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"WAGER_HTTP_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"WAGER_HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WAGER_HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"WAGER_HTTP_SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"WAGER_CORS_ORIGINS"`
	RateLimit       float64       `yaml:"rate_limit" env:"WAGER_RATE_LIMIT"`
	RateBurst       int           `yaml:"rate_burst" env:"WAGER_RATE_BURST"`
	// AuditLog appends admin config changes as JSON lines when set.
	AuditLog string `yaml:"audit_log" env:"WAGER_AUDIT_LOG"`
}

// AuthConfig selects how bearer tokens are verified. An RSA public key file
// takes precedence over the shared secret.
type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret" env:"WAGER_JWT_SECRET"`
	RSAPublicKeyFile string `yaml:"rsa_public_key_file" env:"WAGER_JWT_PUBLIC_KEY_FILE"`
	Issuer           string `yaml:"issuer" env:"WAGER_JWT_ISSUER"`
}

// StorageConfig selects the entry store.
type StorageConfig struct {
	Driver   string `yaml:"driver" env:"WAGER_STORAGE_DRIVER"`
	DSN      string `yaml:"dsn" env:"WAGER_DATABASE_URL"`
	BoltPath string `yaml:"bolt_path" env:"WAGER_BOLT_PATH"`
	Migrate  bool   `yaml:"migrate" env:"WAGER_MIGRATE"`
}

// Grant credits an account when the in-memory ledger starts.
type Grant struct {
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

// LedgerConfig selects the token ledger. The postgres ledger shares the
// storage DSN.
type LedgerConfig struct {
	Driver string  `yaml:"driver" env:"WAGER_LEDGER_DRIVER"`
	Grants []Grant `yaml:"grants"`
}

// ChainConfig selects the head source.
type ChainConfig struct {
	Source        string        `yaml:"source" env:"WAGER_CHAIN_SOURCE"`
	RPCURL        string        `yaml:"rpc_url" env:"WAGER_NEO_RPC_URL"`
	NetworkID     uint32        `yaml:"network_id" env:"WAGER_NEO_NETWORK_ID"`
	Timeout       time.Duration `yaml:"timeout" env:"WAGER_NEO_RPC_TIMEOUT"`
	BlockInterval time.Duration `yaml:"block_interval" env:"WAGER_BLOCK_INTERVAL"`
	Genesis       time.Time     `yaml:"genesis"`
	Salt          string        `yaml:"salt" env:"WAGER_CHAIN_SALT"`
	StartHeight   uint64        `yaml:"start_height" env:"WAGER_START_HEIGHT"`
}

// ProtocolConfig holds the initial protocol registry. Fractions and token
// amounts are decimal strings, e.g. ppv "0.01".
type ProtocolConfig struct {
	Owner             string   `yaml:"owner" env:"WAGER_OWNER"`
	Host              string   `yaml:"host" env:"WAGER_HOST_ACCOUNT"`
	Treasury          string   `yaml:"treasury" env:"WAGER_TREASURY_ACCOUNT"`
	Resolvers         []string `yaml:"resolvers" env:"WAGER_RESOLVERS"`
	PPV               string   `yaml:"ppv" env:"WAGER_PPV"`
	MinPPV            string   `yaml:"min_ppv"`
	MaxPPV            string   `yaml:"max_ppv"`
	HostShare         string   `yaml:"host_share"`
	ProtocolShare     string   `yaml:"protocol_share"`
	MinWager          string   `yaml:"min_wager" env:"WAGER_MIN_WAGER"`
	MaxUnitCount      int      `yaml:"max_unit_count" env:"WAGER_MAX_UNIT_COUNT"`
	BatchResolveLimit int      `yaml:"batch_resolve_limit" env:"WAGER_BATCH_RESOLVE_LIMIT"`
	WithdrawDelay     uint64   `yaml:"withdraw_delay" env:"WAGER_WITHDRAW_DELAY"`
	ActiveProvider    string   `yaml:"active_provider" env:"WAGER_ACTIVE_PROVIDER"`
	EdgeMode          string   `yaml:"edge_mode" env:"WAGER_EDGE_MODE"`
}

// VRFConfig configures the verifiable provider and its in-process node.
type VRFConfig struct {
	Enabled          bool          `yaml:"enabled" env:"WAGER_VRF_ENABLED"`
	SecretKey        string        `yaml:"secret_key" env:"WAGER_VRF_SECRET_KEY"`
	SubscriptionID   uint64        `yaml:"subscription_id" env:"WAGER_VRF_SUBSCRIPTION_ID"`
	KeyHash          string        `yaml:"key_hash" env:"WAGER_VRF_KEY_HASH"`
	CallbackGasLimit uint32        `yaml:"callback_gas_limit" env:"WAGER_VRF_CALLBACK_GAS_LIMIT"`
	Delay            time.Duration `yaml:"delay" env:"WAGER_VRF_DELAY"`
}

// OracleConfig configures the oracle provider and its polling dispatcher.
type OracleConfig struct {
	Enabled       bool          `yaml:"enabled" env:"WAGER_ORACLE_ENABLED"`
	Endpoint      string        `yaml:"endpoint" env:"WAGER_ORACLE_ENDPOINT"`
	Identity      string        `yaml:"identity" env:"WAGER_ORACLE_IDENTITY"`
	APIKey        string        `yaml:"api_key" env:"WAGER_ORACLE_API_KEY"`
	WordsPath     string        `yaml:"words_path" env:"WAGER_ORACLE_WORDS_PATH"`
	Poll          bool          `yaml:"poll" env:"WAGER_ORACLE_POLL"`
	PollInterval  time.Duration `yaml:"poll_interval" env:"WAGER_ORACLE_POLL_INTERVAL"`
	Timeout       time.Duration `yaml:"timeout" env:"WAGER_ORACLE_TIMEOUT"`
	MaxConcurrent int           `yaml:"max_concurrent" env:"WAGER_ORACLE_MAX_CONCURRENT"`
}

// EventsConfig sizes the in-process buffer and the optional redis stream.
type EventsConfig struct {
	BufferSize    int    `yaml:"buffer_size" env:"WAGER_EVENTS_BUFFER"`
	RedisAddr     string `yaml:"redis_addr" env:"WAGER_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"WAGER_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"WAGER_REDIS_DB"`
	Stream        string `yaml:"stream" env:"WAGER_REDIS_STREAM"`
	MaxLen        int64  `yaml:"max_len" env:"WAGER_REDIS_STREAM_MAXLEN"`
}

// SweeperConfig schedules the withdraw-eligibility sweep.
type SweeperConfig struct {
	Schedule string `yaml:"schedule" env:"WAGER_SWEEP_SCHEDULE"`
}

// MetricsConfig names the prometheus namespace.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"WAGER_METRICS_NAMESPACE"`
}

// Default returns a configuration that runs entirely in memory on a
// wall-clock chain with the local provider.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       20,
			RateBurst:       40,
		},
		Logging: logger.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Auth:    AuthConfig{JWTSecret: DevJWTSecret, Issuer: "wagerd"},
		Storage: StorageConfig{Driver: DriverMemory, Migrate: true},
		Ledger:  LedgerConfig{Driver: DriverMemory},
		Chain: ChainConfig{
			Source:        ChainClock,
			Timeout:       30 * time.Second,
			BlockInterval: 15 * time.Second,
			Genesis:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Salt:          "wager-dev",
		},
		Protocol: ProtocolConfig{
			Owner:             "owner",
			Host:              "host",
			Treasury:          "treasury",
			Resolvers:         []string{"keeper"},
			PPV:               "0.01",
			MinPPV:            "0",
			MaxPPV:            "0.1",
			HostShare:         "0.15",
			ProtocolShare:     "0.05",
			MinWager:          "0",
			MaxUnitCount:      100,
			BatchResolveLimit: 50,
			WithdrawDelay:     250,
			ActiveProvider:    string(wager.ProviderLocal),
			EdgeMode:          string(wager.EdgeModeDiscount),
		},
		VRF: VRFConfig{CallbackGasLimit: 2_500_000, Delay: 2 * time.Second},
		Oracle: OracleConfig{
			Identity:      "oracle-node",
			PollInterval:  5 * time.Second,
			Timeout:       10 * time.Second,
			MaxConcurrent: 8,
		},
		Events:  EventsConfig{BufferSize: 1024, Stream: "wager:events", MaxLen: 10_000},
		Sweeper: SweeperConfig{Schedule: "@every 1m"},
		Metrics: MetricsConfig{Namespace: "wager"},
	}
}

// Load reads the YAML file at path over Default, then the optional .env file,
// then WAGER_* overrides, and validates the result. Empty paths are skipped.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays WAGER_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := envdecode.Decode(c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode environment: %w", err)
	}
	return nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if c.Auth.JWTSecret == "" && c.Auth.RSAPublicKeyFile == "" {
		return errors.New("auth: jwt_secret or rsa_public_key_file is required")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for postgres")
		}
	case DriverBolt:
		if c.Storage.BoltPath == "" {
			return errors.New("storage.bolt_path is required for bolt")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Ledger.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver)
	}
	for _, g := range c.Ledger.Grants {
		if g.Account == "" {
			return errors.New("ledger grant without account")
		}
		if _, err := fixedpoint.ParseDecimal(g.Amount); err != nil {
			return fmt.Errorf("ledger grant for %s: %w", g.Account, err)
		}
	}

	switch c.Chain.Source {
	case ChainRPC:
		if c.Chain.RPCURL == "" {
			return errors.New("chain.rpc_url is required for the rpc source")
		}
	case ChainClock:
		if c.Chain.BlockInterval <= 0 {
			return errors.New("chain.block_interval must be positive")
		}
	case ChainManual:
	default:
		return fmt.Errorf("unknown chain source %q", c.Chain.Source)
	}

	pc, err := c.BuildProtocol()
	if err != nil {
		return err
	}
	switch pc.ActiveProvider {
	case wager.ProviderVRF:
		if !c.VRF.Enabled {
			return errors.New("active provider vrf requires vrf.enabled")
		}
	case wager.ProviderOracle:
		if !c.Oracle.Enabled {
			return errors.New("active provider oracle requires oracle.enabled")
		}
	}
	if c.Oracle.Enabled && (c.Oracle.Endpoint == "" || c.Oracle.Identity == "") {
		return errors.New("oracle.endpoint and oracle.identity are required when the oracle is enabled")
	}
	if c.Events.BufferSize <= 0 {
		return errors.New("events.buffer_size must be positive")
	}
	return nil
}

// BuildProtocol converts the decimal settings into the registry's fixed-point
// configuration and validates it. The VRF public key is filled in once the
// node key is known.
func (c *Config) BuildProtocol() (protocol.Config, error) {
	p := c.Protocol
	out := protocol.Config{
		Owner:             p.Owner,
		Host:              p.Host,
		Treasury:          p.Treasury,
		Resolvers:         append([]string(nil), p.Resolvers...),
		MaxUnitCount:      p.MaxUnitCount,
		BatchResolveLimit: p.BatchResolveLimit,
		WithdrawDelay:     p.WithdrawDelay,
		ActiveProvider:    wager.ProviderKind(p.ActiveProvider),
		EdgeMode:          wager.EdgeMode(p.EdgeMode),
		Providers: protocol.ProviderParams{
			VRF: protocol.VRFParams{
				SubscriptionID:   c.VRF.SubscriptionID,
				KeyHash:          c.VRF.KeyHash,
				CallbackGasLimit: c.VRF.CallbackGasLimit,
			},
			Oracle: protocol.OracleParams{
				Endpoint: c.Oracle.Endpoint,
				Identity: c.Oracle.Identity,
			},
		},
	}

	var err error
	if out.PPV, err = decimalField("ppv", p.PPV); err != nil {
		return protocol.Config{}, err
	}
	if out.MinPPV, err = decimalField("min_ppv", p.MinPPV); err != nil {
		return protocol.Config{}, err
	}
	if out.MaxPPV, err = decimalField("max_ppv", p.MaxPPV); err != nil {
		return protocol.Config{}, err
	}
	if out.HostShare, err = decimalField("host_share", p.HostShare); err != nil {
		return protocol.Config{}, err
	}
	if out.ProtocolShare, err = decimalField("protocol_share", p.ProtocolShare); err != nil {
		return protocol.Config{}, err
	}
	if out.MinWager, err = decimalField("min_wager", p.MinWager); err != nil {
		return protocol.Config{}, err
	}
	if err := out.Validate(); err != nil {
		return protocol.Config{}, fmt.Errorf("protocol: %w", err)
	}
	return out, nil
}

func decimalField(name, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("protocol.%s is required", name)
	}
	v, err := fixedpoint.ParseDecimal(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("protocol.%s: %w", name, err)
	}
	return v, nil
}
