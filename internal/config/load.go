package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML config file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := ApplyFile(cfg, path, nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyFile decodes the YAML file at path over cfg. Unknown keys are errors.
// Flags in fs that the user set explicitly keep their command-line value.
func ApplyFile(cfg *Config, path string, fs *pflag.FlagSet) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	explicit := changedFlags(fs)

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return explicit.restore(fs)
}

// flagValues remembers explicitly set flags so a config file cannot
// override them.
type flagValues struct {
	scalars map[string]string
	slices  map[string][]string
}

func changedFlags(fs *pflag.FlagSet) flagValues {
	v := flagValues{
		scalars: make(map[string]string),
		slices:  make(map[string][]string),
	}
	if fs == nil {
		return v
	}
	fs.Visit(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			v.slices[f.Name] = sv.GetSlice()
			return
		}
		v.scalars[f.Name] = f.Value.String()
	})
	return v
}

func (v flagValues) restore(fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, value := range v.scalars {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("restore flag %s: %w", name, err)
		}
	}
	for name, values := range v.slices {
		if sv, ok := fs.Lookup(name).Value.(pflag.SliceValue); ok {
			if err := sv.Replace(values); err != nil {
				return fmt.Errorf("restore flag %s: %w", name, err)
			}
		}
	}
	return nil
}
