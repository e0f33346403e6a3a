// Package config reads the YAML run configuration and decodes its sections into the typed
// configs of each collaborator.
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/vo/utils"
)

// A Config holds the raw sections of a run configuration. Sections are left untyped until the
// owning component decodes them with Decode.
type Config struct {
	Dataset    map[string]interface{} `yaml:"dataset"`
	Detector   map[string]interface{} `yaml:"detector"`
	Matcher    map[string]interface{} `yaml:"matcher"`
	Estimator  map[string]interface{} `yaml:"estimator"`
	Trajectory map[string]interface{} `yaml:"trajectory"`
	Run        map[string]interface{} `yaml:"run"`
	Output     map[string]interface{} `yaml:"output"`

	// Name is the base name of the file the config was read from; it keys the run's results.
	Name string `yaml:"-"`
	Path string `yaml:"-"`
}

// Read reads the config stored at path.
func Read(path string) (*Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %q", path)
	}
	return FromReader(path, bytes.NewReader(data))
}

// FromReader reads a config from r; path is only used to name it.
func FromReader(path string, r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.Errorf("config file %q is empty", path)
		}
		return nil, errors.Wrapf(err, "cannot parse config file %q", path)
	}
	if cfg.Dataset == nil {
		return nil, errors.Errorf("config file %q has no dataset section", path)
	}
	cfg.Path = path
	cfg.Name = utils.BaseName(path)
	return &cfg, nil
}

// Decode decodes a section into the struct pointed to by into, matching keys against json tags.
// Fields absent from the section keep the value they had in into. Unknown keys are an error.
func Decode(section map[string]interface{}, into interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           into,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "cannot build config decoder")
	}
	if err := decoder.Decode(section); err != nil {
		return errors.Wrap(err, "cannot decode config section")
	}
	return nil
}
