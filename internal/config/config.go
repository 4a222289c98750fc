// Package config loads chronostored's configuration (spec.md §6
// "Configuration (enumerated)"): JSONC defaults file plus CLI flag
// overrides. Grounded on calvinalkan-agent-task/config.go's
// hujson-standardize-then-json.Unmarshal parsing and defaults/file/CLI
// precedence chain, and its ls.go/create.go's `spf13/pflag` flag-set
// pattern for the CLI layer.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Durability mirrors internal/facade.Durability as a config-file string
// enum; the façade package itself has no JSON dependency.
type Durability string

const (
	MaxDurability Durability = "MaxDurability"
	Balanced      Durability = "Balanced"
	MaxThroughput Durability = "MaxThroughput"
)

// BackoffPolicy mirrors internal/ingest.BackpressurePolicy the same way.
type BackoffPolicy string

const (
	LinearBackoff BackoffPolicy = "LinearBackoff"
	Throttle      BackoffPolicy = "Throttle"
)

// Config holds every field spec.md §6 enumerates under "Configuration".
type Config struct {
	WindowSize            uint64        `json:"window_size"`
	CompressionThreshold  uint32        `json:"compression_threshold"`
	MaxCacheSize          uint64        `json:"max_cache_size"`
	Durability            Durability    `json:"durability"`
	EnableHugeTLB         bool          `json:"enable_huge_tlb"`
	NWorkers              int           `json:"nworkers"`
	BackoffPolicy         BackoffPolicy `json:"backoff_policy"`
	TCPRespAddr           string        `json:"tcp_resp_addr"`
	UDPRespAddr           string        `json:"udp_resp_addr"`
	TCPPutAddr            string        `json:"tcp_put_addr"`
	MonitorAddr           string        `json:"monitor_addr"`
	VolumeDir             string        `json:"volume_dir"`
	VolumeCount           int           `json:"volume_count"`
	VolumeCapacityBlocks  uint32        `json:"volume_capacity_blocks"`
}

// Default returns the configuration a fresh install starts from.
func Default() Config {
	return Config{
		WindowSize:           1_000_000_000, // 1s, nanoseconds
		CompressionThreshold: 1000,
		MaxCacheSize:         128 << 20,
		Durability:           Balanced,
		NWorkers:             1,
		BackoffPolicy:        LinearBackoff,
		TCPRespAddr:          ":8282",
		UDPRespAddr:          ":8383",
		TCPPutAddr:           ":8484",
		MonitorAddr:          ":8585",
		VolumeDir:            "./data",
		VolumeCount:          2,
		VolumeCapacityBlocks: 1 << 20, // 4 GiB volumes
	}
}

// Load reads path (if non-empty and present) as JSONC over the defaults;
// a missing path is not an error, matching loadConfigFile's "optional
// project config" leg.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid JSONC in %s: %w", path, err)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid JSON in %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate enforces the invariants spec.md §6 states inline
// ("window_size ... must be ≥ 2", "nworkers (≥ 1)").
func Validate(cfg Config) error {
	if cfg.WindowSize < 2 {
		return fmt.Errorf("window_size must be >= 2, got %d", cfg.WindowSize)
	}
	if cfg.NWorkers < 1 {
		return fmt.Errorf("nworkers must be >= 1, got %d", cfg.NWorkers)
	}
	switch cfg.Durability {
	case MaxDurability, Balanced, MaxThroughput:
	default:
		return fmt.Errorf("durability: unknown value %q", cfg.Durability)
	}
	switch cfg.BackoffPolicy {
	case LinearBackoff, Throttle:
	default:
		return fmt.Errorf("backoff_policy: unknown value %q", cfg.BackoffPolicy)
	}
	return nil
}
