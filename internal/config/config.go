// Package config loads sflowcollectd's YAML configuration file, filling
// in documented defaults the same way the teacher's loadConfig does.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration file shape.
type Config struct {
	Source struct {
		Mode string `yaml:"mode"` // "udp" or "pcap"
		UDP  struct {
			Listen string `yaml:"listen"`
		} `yaml:"udp"`
		PCAP struct {
			Interface string `yaml:"interface"`
			Filter    string `yaml:"filter"`
			SnapLen   int32  `yaml:"snaplen"`
			Promisc   bool   `yaml:"promisc"`
			Immediate bool   `yaml:"immediate"`
			TimeoutMs int    `yaml:"timeout_ms"`
		} `yaml:"pcap"`
	} `yaml:"source"`

	Ingest struct {
		QueueSize int `yaml:"queue_size"`
	} `yaml:"ingest"`

	HTTP struct {
		Listen string `yaml:"listen"`
	} `yaml:"http"`

	Monitoring struct {
		StatsIntervalSeconds int `yaml:"stats_interval_seconds"`
	} `yaml:"monitoring"`
}

// Defaults, applied to any zero-value field left unset in the YAML file.
const (
	defaultUDPListen     = "0.0.0.0:6343"
	defaultPCAPInterface = "any"
	defaultPCAPFilter    = "udp dst port 6343"
	defaultSnapLen       = 9000
	defaultHTTPListen    = "0.0.0.0:3030"
	defaultQueueSize     = 1024
	defaultTimeoutMs     = 1000
	defaultStatsInterval = 30
)

// Load reads filename, parses it as YAML, and fills in defaults for
// anything left unset.
func Load(filename string) (Config, error) {
	var cfg Config
	// Immediate defaults to on; pre-seeded before Unmarshal so an explicit
	// "immediate: false" in the file is distinguishable from "unset" (a
	// plain bool's zero value can't tell those apart after the fact).
	cfg.Source.PCAP.Immediate = true

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("config: read %q: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %q: %w", filename, err)
	}

	if cfg.Source.Mode == "" {
		cfg.Source.Mode = "udp"
	}
	if cfg.Source.UDP.Listen == "" {
		cfg.Source.UDP.Listen = defaultUDPListen
	}
	if cfg.Source.PCAP.Interface == "" {
		cfg.Source.PCAP.Interface = defaultPCAPInterface
	}
	if cfg.Source.PCAP.Filter == "" {
		cfg.Source.PCAP.Filter = defaultPCAPFilter
	}
	if cfg.Source.PCAP.SnapLen == 0 {
		cfg.Source.PCAP.SnapLen = defaultSnapLen
	}
	if cfg.Source.PCAP.TimeoutMs == 0 {
		cfg.Source.PCAP.TimeoutMs = defaultTimeoutMs
	}
	if cfg.Ingest.QueueSize == 0 {
		cfg.Ingest.QueueSize = defaultQueueSize
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = defaultHTTPListen
	}
	if cfg.Monitoring.StatsIntervalSeconds == 0 {
		cfg.Monitoring.StatsIntervalSeconds = defaultStatsInterval
	}

	return cfg, nil
}

// PCAPTimeout returns the configured pcap read timeout as a Duration.
func (c Config) PCAPTimeout() time.Duration {
	return time.Duration(c.Source.PCAP.TimeoutMs) * time.Millisecond
}
