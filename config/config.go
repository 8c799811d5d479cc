package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/wippyai/nativebridge/engine"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/runtime"
	"github.com/wippyai/nativebridge/wire"
)

// Peer transports.
const (
	TransportStdio   = "stdio"
	TransportTCP     = "tcp"
	TransportGRPC    = "grpc"
	TransportConnect = "connect"
	TransportWasm    = "wasm"
)

// Config is a bridge.toml configuration.
type Config struct {
	Name     string   `toml:"name"`
	Wire     Wire     `toml:"wire"`
	Estimate Estimate `toml:"estimate"`
	Handles  Handles  `toml:"handles"`
	Log      Log      `toml:"log"`
	Peer     Peer     `toml:"peer"`

	// Path is the file the configuration was loaded from (set at load time).
	Path string `toml:"-"`
}

// Wire configures buffers and decode limits.
type Wire struct {
	RegionSize     int `toml:"region_size"`
	MaxStringSize  int `toml:"max_string_size"`
	MaxArrayLength int `toml:"max_array_length"`
	MaxOutBytes    int `toml:"max_out_bytes"`
}

// Estimate configures the size estimator fallbacks.
type Estimate struct {
	CustomFallback int `toml:"custom_fallback"`
	TypedFallback  int `toml:"typed_fallback"`
}

// Handles configures handle tags.
type Handles struct {
	IsolateTag uint16 `toml:"isolate_tag"`
	PeerTag    uint16 `toml:"peer_tag"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `toml:"level"`
	Encoding    string `toml:"encoding"`
	Development bool   `toml:"development"`
}

// Peer configures how the peer isolate is reached.
type Peer struct {
	Transport        string   `toml:"transport"`
	Address          string   `toml:"address"`
	Command          []string `toml:"command"`
	Timeout          Duration `toml:"timeout"`
	MaxFrame         int      `toml:"max_frame"`
	MemoryLimitPages uint32   `toml:"memory_limit_pages"`
	WASI             bool     `toml:"wasi"`
}

// Duration is a time.Duration written as a string ("5s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Name:    "bridge",
		Handles: Handles{IsolateTag: runtime.DefaultTag, PeerTag: runtime.DefaultTag + 1},
		Log:     Log{Level: "info", Encoding: "console"},
		Peer:    Peer{Transport: TransportStdio, Timeout: Duration{30 * time.Second}},
	}
}

// Parse decodes TOML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("unknown keys: %s", strings.Join(keys, ", ")).
			Build()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c.Path = path
	return c, nil
}

// Validate checks values the runtime cannot default.
func (c *Config) Validate() error {
	if c.Wire.RegionSize < 0 || c.Wire.MaxStringSize < 0 || c.Wire.MaxArrayLength < 0 || c.Wire.MaxOutBytes < 0 ||
		c.Estimate.CustomFallback < 0 || c.Estimate.TypedFallback < 0 || c.Peer.MaxFrame < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "sizes must not be negative")
	}
	if c.Handles.IsolateTag == 0 || c.Handles.PeerTag == 0 {
		return errors.InvalidInput(errors.PhaseConfig, "handle tags must not be 0")
	}
	if c.Handles.IsolateTag == c.Handles.PeerTag {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("isolate_tag and peer_tag are both %d", c.Handles.IsolateTag).
			Build()
	}
	switch c.Peer.Transport {
	case TransportStdio, TransportTCP, TransportGRPC, TransportConnect, TransportWasm:
	default:
		return errors.New(errors.PhaseConfig, errors.KindUnsupported).
			Detail("unknown transport %q", c.Peer.Transport).
			Value(c.Peer.Transport).
			Build()
	}
	if c.Peer.MemoryLimitPages > engine.MaxMemoryPages {
		return errors.New(errors.PhaseConfig, errors.KindOutOfBounds).
			Detail("memory_limit_pages above %d", engine.MaxMemoryPages).
			Build()
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	return nil
}

// Runtime returns the runtime configuration.
func (c *Config) Runtime() runtime.Config {
	return runtime.Config{
		Name: c.Name,
		Limits: wire.Limits{
			MaxStringSize:  c.Wire.MaxStringSize,
			MaxArrayLength: c.Wire.MaxArrayLength,
			MaxOutBytes:    c.Wire.MaxOutBytes,
		},
		RegionSize:     c.Wire.RegionSize,
		CustomFallback: c.Estimate.CustomFallback,
		TypedFallback:  c.Estimate.TypedFallback,
		Tag:            c.Handles.IsolateTag,
	}
}

// Engine returns the wazero engine configuration.
func (c *Config) Engine() *engine.Config {
	return &engine.Config{MemoryLimitPages: c.Peer.MemoryLimitPages, EnableWASI: c.Peer.WASI}
}

// Logger builds the zap logger described by the log section. It always
// writes to stderr; stdout may carry peer frames.
func (c *Config) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	zc.Level = level
	if c.Log.Encoding != "" {
		zc.Encoding = c.Log.Encoding
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	l, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "build logger")
	}
	return l, nil
}
