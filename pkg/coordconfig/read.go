// Package coordconfig pkg/coordconfig/read.go
package coordconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-version"
)

// Reader reads a config from r. confPath is where it is flushed to.
func Reader(r io.Reader, confPath string) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	return ReadRaw(raw, confPath)
}

// ReadFile reads the config file at confPath.
func ReadFile(confPath string) (*Config, error) {
	raw, err := os.ReadFile(filepath.Clean(confPath))
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	return ReadRaw(raw, confPath)
}

// ReadOrCreate reads the config at confPath, writing a default one first if
// the file does not exist.
func ReadOrCreate(confPath string) (*Config, error) {
	conf, err := ReadFile(confPath)
	if err == nil {
		return conf, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	conf = MakeBaseConfig(confPath)
	if err := conf.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write default config: %w", err)
	}
	return conf, nil
}

// ReadRaw decodes raw over the defaults.
func ReadRaw(raw []byte, confPath string) (*Config, error) {
	conf := MakeBaseConfig(confPath)

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(conf); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	if err := checkVersion(conf.Version); err != nil {
		return nil, err
	}
	if err := conf.ensureKeys(); err != nil {
		return nil, fmt.Errorf("%v: %w", ErrInvalidSK, err)
	}
	return conf, nil
}

// checkVersion rejects configs written by releases older than
// MinCompatibleVersion. Unparsable versions come from development builds and
// are accepted.
func checkVersion(v string) error {
	confVersion, err := version.NewVersion(v)
	if err != nil {
		return nil
	}
	minVersion, err := version.NewVersion(MinCompatibleVersion)
	if err != nil {
		return err
	}
	if confVersion.LessThan(minVersion) {
		return fmt.Errorf("%w: %s < %s", ErrIncompatibleVersion, v, MinCompatibleVersion)
	}
	return nil
}
