// Package config loads the pipeline's YAML configuration file, applies
// environment overrides and validates the result before anything runs.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration. A *Config returned by Load is
// validated and must not be modified afterwards.
type Config struct {
	Server  Server  `yaml:"server"`
	Source  Source  `yaml:"source"`
	Upload  Upload  `yaml:"upload"`
	Store   Store   `yaml:"store"`
	API     API     `yaml:"api"`
	Logging Logging `yaml:"logging"`
}

// Server holds the HunchLab data service connection settings.
type Server struct {
	// BaseURL is the service root; the upload path is appended to it.
	BaseURL string `yaml:"baseurl" env:"HUNCHLAB_BASEURL"`

	// CertificateAuthority is a PEM bundle; only these roots are trusted.
	CertificateAuthority string `yaml:"certificateauthority" env:"HUNCHLAB_CA"`

	Token string `yaml:"token" env:"HUNCHLAB_TOKEN"`

	// Timeout applies to each request. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout" env:"HUNCHLAB_TIMEOUT"`
}

// Source holds the open-data collection settings.
type Source struct {
	Endpoint string `yaml:"endpoint" env:"SOURCE_ENDPOINT" default:"http://data.nola.gov/resource/jsyu-nz5r.json"`

	// Datasource is written to every row; empty means the endpoint URL.
	Datasource string `yaml:"datasource" env:"SOURCE_DATASOURCE"`

	Output    string        `yaml:"output" env:"SOURCE_OUTPUT" default:"NolaCrimes2014.csv"`
	OutputDir string        `yaml:"output_dir" env:"SOURCE_OUTPUT_DIR"`
	PageSize  int           `yaml:"page_size" env:"SOURCE_PAGE_SIZE" default:"1000"`
	PageDelay time.Duration `yaml:"page_delay" env:"SOURCE_PAGE_DELAY" default:"250ms"`
	Timeout   time.Duration `yaml:"timeout" env:"SOURCE_TIMEOUT"`
}

// Upload holds job polling settings.
type Upload struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"UPLOAD_POLL_INTERVAL" default:"15s"`
}

// Store holds the run history database location.
type Store struct {
	Path string `yaml:"path" env:"STORE_PATH" default:"pipeline.db"`
}

// API holds the status API listener settings.
type API struct {
	Addr            string        `yaml:"addr" env:"API_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"API_SHUTDOWN_TIMEOUT" default:"10s"`
}

// Logging holds logging settings.
type Logging struct {
	// Level is the console level: debug, info, warn, error.
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is text or json.
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`

	// File, when set, receives every record at debug level.
	File string `yaml:"file" env:"LOG_FILE"`
}

// String returns a representation safe for logging. The token is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {BaseURL: %q, CA: %q, Token: [MASKED]}, ",
		c.Server.BaseURL, c.Server.CertificateAuthority))
	b.WriteString(fmt.Sprintf("Source: {Endpoint: %q, Output: %q, PageSize: %d, PageDelay: %s}, ",
		c.Source.Endpoint, c.Source.Output, c.Source.PageSize, c.Source.PageDelay))
	b.WriteString(fmt.Sprintf("Upload: {PollInterval: %s}, ", c.Upload.PollInterval))
	b.WriteString(fmt.Sprintf("Store: {Path: %q}, ", c.Store.Path))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
