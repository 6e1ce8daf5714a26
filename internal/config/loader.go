package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "config.yaml"

// ErrNotFound is returned when the configuration file does not exist.
var ErrNotFound = errors.New("configuration file not found")

// Load reads the file at path, applies environment overrides and defaults,
// and validates every section.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Read loads the file, environment overrides and defaults without
// validating. Callers that only need part of the configuration validate
// that part themselves.
func Read(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("config load: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config parse %s: %w", path, err)
	}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	return cfg, nil
}

// loadStruct recursively overrides fields from environment variables and
// fills fields still at their zero value from the default tag.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if value := os.Getenv(envName); envName != "" && value != "" {
			if err := setField(fieldVal, value); err != nil {
				return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
			}
			continue
		}

		if defaultVal := field.Tag.Get("default"); defaultVal != "" && fieldVal.IsZero() {
			if err := setField(fieldVal, defaultVal); err != nil {
				return fmt.Errorf("invalid default for %s: %w", field.Name, err)
			}
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks every section and reports all failures in one error.
func (c *Config) Validate() error {
	var errs []string
	errs = append(errs, c.Server.problems()...)
	errs = append(errs, c.Source.problems()...)
	errs = append(errs, c.Upload.problems()...)
	errs = append(errs, c.Store.problems()...)
	errs = append(errs, c.Logging.problems()...)
	return joinProblems(errs)
}

// ValidateService checks only what the status API needs.
func (c *Config) ValidateService() error {
	var errs []string
	errs = append(errs, c.Store.problems()...)
	errs = append(errs, c.API.problems()...)
	errs = append(errs, c.Logging.problems()...)
	return joinProblems(errs)
}

func joinProblems(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (s Server) problems() []string {
	var errs []string

	if s.BaseURL == "" {
		errs = append(errs, "server.baseurl is required")
	} else if u, err := url.Parse(s.BaseURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Sprintf("server.baseurl (%q) is not an absolute URL", s.BaseURL))
	} else if u.Scheme != "https" {
		errs = append(errs, fmt.Sprintf("server.baseurl (%q) must use https", s.BaseURL))
	}

	if s.CertificateAuthority == "" {
		errs = append(errs, "server.certificateauthority is required")
	} else if info, err := os.Stat(s.CertificateAuthority); err != nil {
		errs = append(errs, fmt.Sprintf("server.certificateauthority (%q) is not readable: %v", s.CertificateAuthority, err))
	} else if info.IsDir() {
		errs = append(errs, fmt.Sprintf("server.certificateauthority (%q) is a directory", s.CertificateAuthority))
	}

	if s.Token == "" {
		errs = append(errs, "server.token is required")
	}
	if s.Timeout < 0 {
		errs = append(errs, "server.timeout must be non-negative")
	}
	return errs
}

func (s Source) problems() []string {
	var errs []string

	if s.Endpoint == "" {
		errs = append(errs, "source.endpoint is required")
	} else if u, err := url.Parse(s.Endpoint); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("source.endpoint (%q) must be an http(s) URL", s.Endpoint))
	}
	if s.Output == "" {
		errs = append(errs, "source.output is required")
	}
	if s.PageSize <= 0 {
		errs = append(errs, fmt.Sprintf("source.page_size (%d) must be positive", s.PageSize))
	}
	if s.PageDelay < 0 {
		errs = append(errs, "source.page_delay must be non-negative")
	}
	if s.Timeout < 0 {
		errs = append(errs, "source.timeout must be non-negative")
	}
	return errs
}

func (u Upload) problems() []string {
	if u.PollInterval <= 0 {
		return []string{"upload.poll_interval must be positive"}
	}
	return nil
}

func (s Store) problems() []string {
	if s.Path == "" {
		return []string{"store.path is required"}
	}
	return nil
}

func (a API) problems() []string {
	var errs []string
	if a.Addr == "" {
		errs = append(errs, "api.addr is required")
	}
	if a.ShutdownTimeout <= 0 {
		errs = append(errs, "api.shutdown_timeout must be positive")
	}
	return errs
}

func (l Logging) problems() []string {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(l.Level)] {
		errs = append(errs, fmt.Sprintf("logging.level (%q) must be one of: debug, info, warn, error", l.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(l.Format)] {
		errs = append(errs, fmt.Sprintf("logging.format (%q) must be one of: text, json", l.Format))
	}
	return errs
}
