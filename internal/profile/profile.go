// Package profile loads the saved connection settings used by the CLI.
package profile

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Profile holds connection defaults. Command line flags and environment
// variables override every field.
type Profile struct {
	Broker         string        `yaml:"broker"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Destination    string        `yaml:"destination"`
	Topic          bool          `yaml:"topic"`
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
	ClientID       string        `yaml:"client_id"`
	LogLevel       string        `yaml:"log_level"`
}

// Default returns a Profile with sensible defaults.
func Default() Profile {
	return Profile{
		LogLevel: "info",
	}
}

// Load reads the profile at path. A missing file yields the defaults.
func Load(path string) (*Profile, error) {
	p := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read profile: %w", err)
			}

			if err := yaml.Unmarshal(data, &p); err != nil {
				return nil, fmt.Errorf("parse profile: %w", err)
			}
		}
	}

	p.applyDefaults()

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	return &p, nil
}

// applyDefaults sets default values for any unset options.
func (p *Profile) applyDefaults() {
	if p.LogLevel == "" {
		p.LogLevel = Default().LogLevel
	}
}

// Validate checks the fields that can be checked without a broker.
func (p *Profile) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Broker, validation.By(brokerURI)),
		validation.Field(&p.ReceiveTimeout, validation.Min(time.Duration(0))),
		validation.Field(&p.LogLevel, validation.By(logLevel)),
	)
}

func brokerURI(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme == "" {
		return errors.New("must have a scheme, e.g. amqp://host:5672")
	}
	return nil
}

func logLevel(value any) error {
	s, _ := value.(string)
	_, err := zerolog.ParseLevel(s)
	return err
}

// Save writes the profile to path, creating parent directories. The file is
// private to the user because it may hold a password.
func (p *Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
