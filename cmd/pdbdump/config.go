package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/jtang613/pdbstruct/pkg/typedesc"
)

const configName = "pdbdump.toml"

// config is the contents of pdbdump.toml. Flags override file values.
type config struct {
	SearchPath    []string `toml:"search_path"`
	Format        string   `toml:"format"`
	Color         string   `toml:"color"`
	Pretty        bool     `toml:"pretty"`
	LogLevel      string   `toml:"log_level"`
	Capacity      int      `toml:"capacity"`
	Workers       int      `toml:"workers"`
	CaseSensitive bool     `toml:"case_sensitive"`
	Undecorate    bool     `toml:"undecorate"`
}

func defaultConfig() config {
	return config{
		Format:     "json",
		Color:      "auto",
		LogLevel:   "warn",
		Capacity:   typedesc.MaxChildren,
		Workers:    runtime.GOMAXPROCS(0),
		Undecorate: true,
	}
}

// loadConfig reads the configuration from path, or when path is empty from
// the first pdbdump.toml found in the working directory and then the user
// config directory. A missing default file yields the defaults; a missing
// explicit file is an error.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = findConfig()
		if path == "" {
			return cfg, nil
		}
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		return config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return config{}, fmt.Errorf("%s: unknown key %q", path, undec[0].String())
	}
	return cfg, nil
}

func findConfig() string {
	candidates := []string{configName}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "pdbdump", configName))
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

func (c config) validate() error {
	if !slices.Contains([]string{"json", "table", "msgpack"}, c.Format) {
		return fmt.Errorf("unknown format %q (want json, table or msgpack)", c.Format)
	}
	if !slices.Contains([]string{"auto", "on", "off"}, c.Color) {
		return fmt.Errorf("unknown color mode %q (want auto, on or off)", c.Color)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}
