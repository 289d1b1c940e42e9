package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ProviderConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Region     string `yaml:"region"`
	MXHost     string `yaml:"mx_host"`
	SPFInclude string `yaml:"spf_include"`
	DKIMSuffix string `yaml:"dkim_suffix"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type VerifyConfig struct {
	IntervalSec  int   `yaml:"interval_sec"`
	TimeoutHours int   `yaml:"timeout_hours"`
	Workers      int   `yaml:"workers"`
	RequireDMARC *bool `yaml:"require_dmarc"`
}

type DNSHostConfig struct {
	Enabled    bool     `yaml:"enabled"`
	APIURL     string   `yaml:"api_url"`
	APIToken   string   `yaml:"api_token"`
	NSSuffixes []string `yaml:"ns_suffixes"`
}

type LogConfig struct {
	VerifyVerbose bool `yaml:"verify_verbose"`
}

type Config struct {
	Listen     string   `yaml:"listen"`
	AdminToken string   `yaml:"admin_token"`
	Resolvers  []string `yaml:"resolvers"`

	DB       DBConfig       `yaml:"db"`
	Provider ProviderConfig `yaml:"provider"`
	Verify   VerifyConfig   `yaml:"verify"`
	DNSHost  DNSHostConfig  `yaml:"dnshost"`
	Log      LogConfig      `yaml:"log"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if len(c.Resolvers) == 0 {
		// Three independent operators to avoid correlated failure.
		c.Resolvers = []string{"1.1.1.1:53", "8.8.8.8:53", "9.9.9.9:53"}
	}
	if c.Provider.Region == "" {
		c.Provider.Region = "eu-west-1"
	}
	if c.Provider.Endpoint == "" {
		c.Provider.Endpoint = fmt.Sprintf("https://email.%s.amazonaws.com", c.Provider.Region)
	}
	if c.Provider.MXHost == "" {
		c.Provider.MXHost = fmt.Sprintf("inbound-smtp.%s.amazonaws.com", c.Provider.Region)
	}
	if c.Provider.SPFInclude == "" {
		c.Provider.SPFInclude = "amazonses.com"
	}
	if c.Provider.DKIMSuffix == "" {
		c.Provider.DKIMSuffix = "dkim.amazonses.com"
	}
	if c.Provider.TimeoutSec == 0 {
		c.Provider.TimeoutSec = 10
	}
	if c.Verify.IntervalSec == 0 {
		c.Verify.IntervalSec = 300
	}
	if c.Verify.TimeoutHours == 0 {
		c.Verify.TimeoutHours = 72
	}
	if c.Verify.Workers == 0 {
		c.Verify.Workers = 4
	}
	if c.DNSHost.APIURL == "" {
		c.DNSHost.APIURL = "https://api.cloudflare.com/client/v4"
	}
	if len(c.DNSHost.NSSuffixes) == 0 {
		c.DNSHost.NSSuffixes = []string{".ns.cloudflare.com"}
	}
}

func (c *Config) validate() error {
	for _, r := range c.Resolvers {
		if !strings.Contains(r, ":") {
			return fmt.Errorf("resolver %q must include a port", r)
		}
	}
	if c.Verify.Workers < 1 {
		return fmt.Errorf("verify.workers must be >= 1")
	}
	return nil
}

func (c *Config) VerifyInterval() time.Duration {
	return time.Duration(c.Verify.IntervalSec) * time.Second
}

func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.Verify.TimeoutHours) * time.Hour
}

// RequireDMARC reports whether the DMARC record gates verification.
// Defaults to true when unset.
func (c *Config) RequireDMARC() bool {
	if c.Verify.RequireDMARC == nil {
		return true
	}
	return *c.Verify.RequireDMARC
}
