// Package config loads bridge and mock network settings from YAML.
//
//	attach:
//	  policy: persistent
//	registry:
//	  shards: 16
//	  quarantine: 256
//	native:
//	  workers: 4
//	  cache_size: 300
//	  vault: /var/lib/safecore/vault.db
//	  chunk_size: 65536
//	  compression: zstd
//	log:
//	  level: debug
//	  development: true
//
// Missing keys keep their Default values. Unknown keys are rejected.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/Fraser999/safe-core/attach"
	"github.com/Fraser999/safe-core/bridge"
	"github.com/Fraser999/safe-core/errors"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/native/mocknet"
	"github.com/Fraser999/safe-core/registry"
)

// VaultMemory selects an in-memory vault.
const VaultMemory = "memory"

// Config is the complete configuration of a bridge over a mock network.
type Config struct {
	Attach   AttachConfig   `yaml:"attach"`
	Registry RegistryConfig `yaml:"registry"`
	Native   NativeConfig   `yaml:"native"`
	Log      LogConfig      `yaml:"log"`
}

// AttachConfig configures thread attachment.
type AttachConfig struct {
	// Policy is "ephemeral" or "persistent".
	Policy attach.Policy `yaml:"policy"`
}

// RegistryConfig sizes the handle registry.
type RegistryConfig struct {
	Shards int `yaml:"shards"`
	// Quarantine is how many retired slots are held back from reuse. A
	// negative value disables quarantine.
	Quarantine int `yaml:"quarantine"`
}

// NativeConfig configures the mock native client.
type NativeConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
	// CacheSize bounds the immutable chunk cache. Negative disables it.
	CacheSize int    `yaml:"cache_size"`
	Quota     uint64 `yaml:"quota"`
	// Vault is "memory" or the path of a sqlite database.
	Vault       string        `yaml:"vault"`
	ChunkSize   uint32        `yaml:"chunk_size"`
	Compression string        `yaml:"compression"`
	Latency     time.Duration `yaml:"latency"`
	// MaxOps limits how many requests the network accepts. Zero means no
	// limit.
	MaxOps uint64 `yaml:"max_ops"`
	// DuplicateTerminal injects a protocol violation after every request,
	// for exercising a host's fatal error handling.
	DuplicateTerminal bool `yaml:"duplicate_terminal"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Attach: AttachConfig{Policy: attach.Ephemeral},
		Registry: RegistryConfig{
			Shards:     registry.DefaultShards,
			Quarantine: registry.DefaultQuarantine,
		},
		Native: NativeConfig{
			Workers:     mocknet.DefaultWorkers,
			QueueSize:   mocknet.DefaultQueueSize,
			CacheSize:   mocknet.DefaultCacheSize,
			Quota:       mocknet.DefaultQuota,
			Vault:       VaultMemory,
			ChunkSize:   bridge.DefaultChunkSize,
			Compression: mocknet.CompressionNone.String(),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode yaml")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func invalid(value any, detail string, path ...string) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidArgument).
		Path(path...).
		Value(value).
		Detail(detail).
		Build()
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	check := func(bad bool, value any, detail string, path ...string) {
		if bad {
			errs = append(errs, invalid(value, detail, path...))
		}
	}

	check(c.Attach.Policy != attach.Ephemeral && c.Attach.Policy != attach.Persistent,
		c.Attach.Policy, "unknown policy", "attach", "policy")
	check(c.Registry.Shards < 0, c.Registry.Shards, "must not be negative", "registry", "shards")
	check(c.Native.Workers < 1, c.Native.Workers, "at least one worker is required", "native", "workers")
	check(c.Native.QueueSize < 1, c.Native.QueueSize, "must be positive", "native", "queue_size")
	check(c.Native.Quota == 0, c.Native.Quota, "must be positive", "native", "quota")
	check(c.Native.ChunkSize == 0, c.Native.ChunkSize, "must be positive", "native", "chunk_size")
	check(c.Native.Latency < 0, c.Native.Latency, "must not be negative", "native", "latency")
	check(strings.TrimSpace(c.Native.Vault) == "", c.Native.Vault, "vault is required", "native", "vault")

	if _, err := mocknet.ParseCompression(c.Native.Compression); err != nil {
		errs = append(errs, invalid(c.Native.Compression, err.Error(), "native", "compression"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, invalid(c.Log.Level, err.Error(), "log", "level"))
	}

	return stderrors.Join(errs...)
}

// Logger builds the zap logger described by the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// OpenVault opens the configured vault. The caller owns the result.
func (c *Config) OpenVault() (mocknet.Vault, error) {
	if c.Native.Vault == VaultMemory {
		return mocknet.NewMemoryVault(), nil
	}
	v, err := mocknet.OpenSQLiteVault(c.Native.Vault)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	return v, nil
}

// NetOptions returns mock network options using vault for storage.
func (c *Config) NetOptions(vault mocknet.Vault, log *zap.Logger) mocknet.Options {
	comp, _ := mocknet.ParseCompression(c.Native.Compression)
	return mocknet.Options{
		Vault:       vault,
		Logger:      log,
		Workers:     c.Native.Workers,
		QueueSize:   c.Native.QueueSize,
		CacheSize:   c.Native.CacheSize,
		Quota:       c.Native.Quota,
		Compression: comp,
		Latency:     c.Native.Latency,

		MaxOps:            c.Native.MaxOps,
		DuplicateTerminal: c.Native.DuplicateTerminal,
	}
}

// BridgeOptions returns bridge options for vm and client.
func (c *Config) BridgeOptions(vm managed.VM, client *mocknet.Client, log *zap.Logger) bridge.Options {
	return bridge.Options{
		VM:         vm,
		Client:     client,
		Logger:     log,
		Shards:     c.Registry.Shards,
		Quarantine: c.Registry.Quarantine,
		ChunkSize:  c.Native.ChunkSize,
		Policy:     c.Attach.Policy,
	}
}
