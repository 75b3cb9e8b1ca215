// Package config handles liveobjects.toml session configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "liveobjects.toml"

// Config represents a liveobjects.toml file.
type Config struct {
	Image   ImageConfig   `toml:"image"`
	Session SessionConfig `toml:"session"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`

	// Dir is the directory containing the liveobjects.toml file (set at load
	// time, or the working directory for defaults).
	Dir string `toml:"-"`
}

// ImageConfig locates the world artifact.
type ImageConfig struct {
	Path string `toml:"path"`
}

// SessionConfig configures the command loop.
type SessionConfig struct {
	Prompt  string `toml:"prompt"`
	Startup *bool  `toml:"startup"`
	Dialogs bool   `toml:"dialogs"`
}

// ServerConfig configures the remote command service.
type ServerConfig struct {
	Addr  string `toml:"addr"`
	Watch bool   `toml:"watch"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Defaults
const (
	DefaultImagePath = "world.star"
	DefaultPrompt    = "LiveObjects> "
	DefaultAddr      = "127.0.0.1:4567"
)

// Default returns the configuration used when no liveobjects.toml exists.
func Default(dir string) *Config {
	c := &Config{Dir: dir}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Image.Path == "" {
		c.Image.Path = DefaultImagePath
	}
	if c.Session.Prompt == "" {
		c.Session.Prompt = DefaultPrompt
	}
	if c.Session.Startup == nil {
		on := true
		c.Session.Startup = &on
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
}

// Load parses a liveobjects.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	c.applyDefaults()
	return &c, nil
}

// FindAndLoad walks up from startDir to find a liveobjects.toml file, then
// loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Save writes c to liveobjects.toml in c.Dir.
func (c *Config) Save() error {
	path := filepath.Join(c.Dir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return f.Close()
}

// ImagePath returns the artifact path, resolved against Dir when relative.
func (c *Config) ImagePath() string {
	if filepath.IsAbs(c.Image.Path) || c.Dir == "" {
		return c.Image.Path
	}
	return filepath.Join(c.Dir, c.Image.Path)
}

// LogPath returns the log file path for commonlog.Configure, or nil to log
// to stderr.
func (c *Config) LogPath() *string {
	if c.Log.File == "" {
		return nil
	}
	path := c.Log.File
	if !filepath.IsAbs(path) && c.Dir != "" {
		path = filepath.Join(c.Dir, path)
	}
	return &path
}

// RunStartup reports whether startup hooks run after hydrate.
func (c *Config) RunStartup() bool {
	return c.Session.Startup == nil || *c.Session.Startup
}
