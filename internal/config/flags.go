package config

import (
	flag "github.com/spf13/pflag"
)

// ApplyFlags parses CLI overrides for the subset of Config an operator
// commonly needs to flip without editing the config file, mirroring
// ls.go/create.go's flag.NewFlagSet-per-command pattern from the teacher
// pack's pflag usage.
func ApplyFlags(cfg Config, args []string) (Config, error) {
	fs := flag.NewFlagSet("chronostored", flag.ContinueOnError)

	// --config is read by the caller before Load; it is declared here only
	// so that parsing the same argument list accepts it.
	fs.String("config", "", "path to the JSONC config file")

	tcpResp := fs.String("tcp-resp-addr", cfg.TCPRespAddr, "Dialect A TCP listen address")
	udpResp := fs.String("udp-resp-addr", cfg.UDPRespAddr, "Dialect A UDP listen address")
	tcpPut := fs.String("tcp-put-addr", cfg.TCPPutAddr, "Dialect B TCP listen address")
	monitorAddr := fs.String("monitor-addr", cfg.MonitorAddr, "monitoring HTTP/websocket listen address")
	volumeDir := fs.String("volume-dir", cfg.VolumeDir, "directory holding volume files")
	nworkers := fs.Int("nworkers", cfg.NWorkers, "UDP worker count")
	durability := fs.String("durability", string(cfg.Durability), "MaxDurability|Balanced|MaxThroughput")
	backoff := fs.String("backoff-policy", string(cfg.BackoffPolicy), "LinearBackoff|Throttle")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.TCPRespAddr = *tcpResp
	cfg.UDPRespAddr = *udpResp
	cfg.TCPPutAddr = *tcpPut
	cfg.MonitorAddr = *monitorAddr
	cfg.VolumeDir = *volumeDir
	cfg.NWorkers = *nworkers
	cfg.Durability = Durability(*durability)
	cfg.BackoffPolicy = BackoffPolicy(*backoff)

	return cfg, Validate(cfg)
}
