// YAML config loader with CUE validation
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Environment variables read by ApplyEnv.
const (
	EnvToken            = "TINYBIRD_WRITE_TOKEN"
	EnvAPIURL           = "TINYBIRD_API_URL"
	EnvGreptimeEndpoint = "GREPTIMEDB_ENDPOINT"
	EnvGreptimeDatabase = "GREPTIMEDB_DATABASE"
	EnvGreptimeTable    = "GREPTIMEDB_TABLE"
)

// Greptime holds the optional GreptimeDB destination.
type Greptime struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Port     int    `yaml:"port" json:"port"`
	Database string `yaml:"database" json:"database"`
	Table    string `yaml:"table" json:"table"`
}

// Config is the resolved telemetry configuration.
type Config struct {
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Disable    bool          `yaml:"disable" json:"disable"`
	File       string        `yaml:"file" json:"file"`
	DiskPath   string        `yaml:"disk_path" json:"disk_path"`
	APIURL     string        `yaml:"api_url" json:"api_url"`
	Datasource string        `yaml:"datasource" json:"datasource"`
	Compress   bool          `yaml:"gzip" json:"gzip"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	Greptime   Greptime      `yaml:"greptime" json:"greptime"`

	// Token is only read from the environment.
	Token string `yaml:"-" json:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BatchSize:  50,
		DiskPath:   "/",
		APIURL:     "https://api.tinybird.co",
		Datasource: "ci_test_metrics",
		Timeout:    10 * time.Second,
		Greptime: Greptime{
			Port:     4001,
			Database: "public",
			Table:    "ci_test_metrics",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyEnv overlays values from the environment through lookup (os.LookupEnv).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvToken); ok {
		c.Token = v
	}
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		c.APIURL = v
	}
	if v, ok := lookup(EnvGreptimeEndpoint); ok {
		c.Greptime.Endpoint = v
	}
	if v, ok := lookup(EnvGreptimeDatabase); ok && v != "" {
		c.Greptime.Database = v
	}
	if v, ok := lookup(EnvGreptimeTable); ok && v != "" {
		c.Greptime.Table = v
	}
}

// Validate checks the configuration against the embedded CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	final := def.Unify(ctx.Encode(c))
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Mode is the delivery destination selected by a configuration.
type Mode int

const (
	// ModeOff means telemetry is not activated.
	ModeOff Mode = iota
	ModeFile
	ModeTinybird
	ModeGreptime
)

func (m Mode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeTinybird:
		return "tinybird"
	case ModeGreptime:
		return "greptimedb"
	}
	return "off"
}

// Mode picks the destination: disabled wins, then a local file, then the
// Tinybird token, then a GreptimeDB endpoint. Without any of them telemetry stays off.
func (c *Config) Mode() Mode {
	switch {
	case c.Disable:
		return ModeOff
	case c.File != "":
		return ModeFile
	case c.Token != "":
		return ModeTinybird
	case c.Greptime.Endpoint != "":
		return ModeGreptime
	}
	return ModeOff
}

// Marshal renders the configuration as YAML. The token is never included.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
