// Package config loads unpctl's on-disk configuration, grounded on
// nexctl's pkg/config.Load: a YAML file under the user's home directory,
// with sane defaults and a world-readable permission warning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds unpctl's persisted defaults.
type Config struct {
	ServerAddr       string        `yaml:"server_addr"`
	ProtocolSig      string        `yaml:"protocol_signature"`
	MaxPacketSize    int           `yaml:"max_packet_size"`
	AckResendTimeout time.Duration `yaml:"ack_resend_timeout"`
	AckForgetTimeout time.Duration `yaml:"ack_forget_timeout"`
	DiscoverPorts    []int         `yaml:"discover_ports"`
	DiscoverWorkers  int           `yaml:"discover_workers"`
}

// DefaultPath returns ~/.unp/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".unp", "config.yaml")
	}
	return filepath.Join(home, ".unp", "config.yaml")
}

// Load reads cfg from path, falling back to defaults if the file does not
// exist.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ServerAddr:       "127.0.0.1:6477",
		ProtocolSig:      "UNP",
		MaxPacketSize:    512,
		AckResendTimeout: 200 * time.Millisecond,
		AckForgetTimeout: 2000 * time.Millisecond,
		DiscoverPorts:    []int{6477},
		DiscoverWorkers:  32,
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		fmt.Fprintf(os.Stderr,
			"warning: config file %s has permissions %04o — expected 0600\n",
			path, perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Signature converts ProtocolSig into the 3-byte wire signature, padding or
// truncating to exactly 3 bytes.
func (c *Config) Signature() [3]byte {
	var sig [3]byte
	copy(sig[:], c.ProtocolSig)
	return sig
}
