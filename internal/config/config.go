// Package config loads the on-disk and CLI configuration surface of spec §6
// ("CLI surface (data node)"), layering a TOML file (github.com/BurntSushi/toml,
// the way dolthub-dolt loads its server config) under flags parsed by
// github.com/alecthomas/kong, replacing the teacher's getenv/mustGetenv helpers.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ProfileLevel mirrors --profile {0,1,2}: off, slow-only, all operations.
type ProfileLevel int

const (
	ProfileOff ProfileLevel = iota
	ProfileSlowOnly
	ProfileAll
)

// ServerConfig is the merged configuration for a single data node process.
// Field names track the --flag names of spec §6 directly.
type ServerConfig struct {
	DBPath     string       `toml:"dbpath"`
	Port       int          `toml:"port"`
	BindIP     string       `toml:"bind_ip"`
	ReplSet    string       `toml:"replSet"`
	ShardSvr   bool         `toml:"shardsvr"`
	ConfigSvr  bool         `toml:"configsvr"`
	Journal    bool         `toml:"journal"`
	MaxConns   int          `toml:"maxConns"`
	SlowMS     int          `toml:"slowms"`
	Profile    ProfileLevel `toml:"profile"`
	OplogSize  int          `toml:"oplogSize"` // MB
	SyncDelay  int          `toml:"syncdelay"` // seconds
	LogLevel   string       `toml:"logLevel"`
}

// Default returns the baseline configuration applied before a TOML file or
// CLI flags are layered on top.
func Default() ServerConfig {
	return ServerConfig{
		Port:      27018,
		BindIP:    "0.0.0.0",
		Journal:   true,
		MaxConns:  1000000,
		SlowMS:    100,
		Profile:   ProfileOff,
		OplogSize: 1024,
		LogLevel:  "info",
	}
}

// LoadFile layers path's TOML contents onto base, returning the merged
// config. A missing file is not an error; it means "use defaults/flags only".
func LoadFile(path string, base ServerConfig) (ServerConfig, error) {
	if path == "" {
		return base, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return base, nil
	}
	if _, err := toml.DecodeFile(path, &base); err != nil {
		return base, fmt.Errorf("decode config %s: %w", path, err)
	}
	return base, nil
}

// Validate enforces the invariants the CLI surface documents (§6): a node
// cannot be both shardsvr and configsvr, and journal-less dbpaths must not
// already contain journal files (checked by the caller via HasJournalFiles).
func (c ServerConfig) Validate() error {
	if c.ShardSvr && c.ConfigSvr {
		return fmt.Errorf("a node may not be both --shardsvr and --configsvr")
	}
	if c.DBPath == "" {
		return fmt.Errorf("--dbpath is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid --port %d", c.Port)
	}
	return nil
}

// HasJournalFiles reports whether dbpath already contains a journal
// subdirectory with files in it, used to refuse startup with --nojournal
// per spec §6.
func HasJournalFiles(dbpath string) (bool, error) {
	entries, err := os.ReadDir(dbpath + "/journal")
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}
