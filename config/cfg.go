package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	FontsConfig struct {
		Directory     string `yaml:"directory"`
		DefaultFamily string `yaml:"default_family"`
	}

	StylesConfig struct {
		Directory string `yaml:"directory"`
	}

	// LanguagesConfig overrides languages discovered in the book itself, empty
	// values are ignored.
	LanguagesConfig struct {
		Primary   string `yaml:"primary" validate:"omitempty,bcp47_language_tag"`
		Secondary string `yaml:"secondary" validate:"omitempty,bcp47_language_tag"`
		Tertiary  string `yaml:"tertiary" validate:"omitempty,bcp47_language_tag"`
		National  string `yaml:"national" validate:"omitempty,bcp47_language_tag"`
	}

	ThumbnailConfig struct {
		Generate bool `yaml:"generate"`
		Width    int  `yaml:"width" validate:"min=64,max=2048"`
	}

	ImagesConfig struct {
		Sniff     bool            `yaml:"sniff"`
		Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	}

	DocumentConfig struct {
		Unpaginated           bool            `yaml:"unpaginated"`
		FixZip                bool            `yaml:"fix_zip"`
		Verify                bool            `yaml:"verify"`
		OutputNameTemplate    string          `yaml:"output_name_template"`
		FileNameTransliterate bool            `yaml:"file_name_transliterate"`
		Fonts                 FontsConfig     `yaml:"fonts"`
		Styles                StylesConfig    `yaml:"styles"`
		Languages             LanguagesConfig `yaml:"languages"`
		Images                ImagesConfig    `yaml:"images"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Document  DocumentConfig `yaml:"document"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field name above
	OutputNameTemplateFieldName TemplateFieldName = "output_name_template"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(OutputNameTemplateFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
