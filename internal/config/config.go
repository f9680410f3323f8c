package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/devlink/internal/protocol"
	"github.com/danmuck/devlink/internal/protocol/transfer"
)

// Config is the devlink tool configuration loaded from TOML.
type Config struct {
	Transport TransportConfig `toml:"transport"`
	Transfer  TransferConfig  `toml:"transfer"`
}

type TransportConfig struct {
	Addr   string `toml:"addr"`
	Scheme string `toml:"scheme"`
	MTU    int    `toml:"mtu"`
}

type TransferConfig struct {
	MaxRetries          int     `toml:"max_retries"`
	BackoffInitialDelay string  `toml:"backoff_initial_delay"`
	BackoffMultiplier   float64 `toml:"backoff_multiplier"`
	BackoffMaxDelay     string  `toml:"backoff_max_delay"`
	BackoffJitter       bool    `toml:"backoff_jitter"`
}

func Default() Config {
	tc := transfer.DefaultConfig()
	return Config{
		Transport: TransportConfig{
			Scheme: "serial",
			MTU:    512,
		},
		Transfer: TransferConfig{
			MaxRetries:          tc.MaxRetries,
			BackoffInitialDelay: tc.Backoff.InitialDelay.String(),
			BackoffMultiplier:   tc.Backoff.Multiplier,
			BackoffMaxDelay:     tc.Backoff.MaxDelay.String(),
			BackoffJitter:       tc.Backoff.Jitter,
		},
	}
}

// Load reads path over the defaults. Absent keys keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if _, err := ParseScheme(cfg.Transport.Scheme); err != nil {
		return err
	}
	if cfg.Transport.MTU < 0 {
		return fmt.Errorf("config: mtu must be non-negative")
	}
	if cfg.Transfer.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must be non-negative")
	}
	if _, err := cfg.TransferConfig(); err != nil {
		return err
	}
	return nil
}

// ParseScheme maps the config scheme name to the protocol enum.
func ParseScheme(raw string) (protocol.Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "serial":
		return protocol.SchemeSerial, nil
	case "ble":
		return protocol.SchemeBLE, nil
	case "coap+ble", "coap-ble":
		return protocol.SchemeCoapBLE, nil
	case "coap+udp", "coap-udp":
		return protocol.SchemeCoapUDP, nil
	default:
		return 0, fmt.Errorf("config: unknown scheme %q", raw)
	}
}

// TransferConfig converts the TOML shape to transfer tunables.
func (c Config) TransferConfig() (transfer.Config, error) {
	out := transfer.Config{
		MaxRetries: c.Transfer.MaxRetries,
		Backoff: transfer.BackoffConfig{
			Multiplier: c.Transfer.BackoffMultiplier,
			Jitter:     c.Transfer.BackoffJitter,
		},
	}
	var err error
	if out.Backoff.InitialDelay, err = parseDuration(c.Transfer.BackoffInitialDelay, "backoff_initial_delay"); err != nil {
		return transfer.Config{}, err
	}
	if out.Backoff.MaxDelay, err = parseDuration(c.Transfer.BackoffMaxDelay, "backoff_max_delay"); err != nil {
		return transfer.Config{}, err
	}
	return out, nil
}

func parseDuration(raw, key string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s must be non-negative", key)
	}
	return d, nil
}
