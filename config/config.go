package config

import (
	"bytes"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	stormpath "github.com/stormpath/stormpath-migrate"
	"github.com/stormpath/stormpath-migrate/migrators"
)

const (
	SourceKeyEnv      = "STORMPATH_SRC_API_KEY"
	DestinationKeyEnv = "STORMPATH_DST_API_KEY"
)

// DateLayout is the layout of the from date.
const DateLayout = "2006-01-02"

type Config struct {
	Source      Endpoint `yaml:"source"`
	Destination Endpoint `yaml:"destination"`
	Retry       Retry    `yaml:"retry"`
	Skip        struct {
		Directories  []string `yaml:"directories"`
		Applications []string `yaml:"applications"`
	} `yaml:"skip"`
	PasswordFile  string `yaml:"password_file"`
	MappingOutput string `yaml:"mapping_output"`
	MetricsFile   string `yaml:"metrics_file"`
	From          string `yaml:"from"`
	Log           struct {
		Verbose bool `yaml:"verbose"`
	} `yaml:"log"`
}

// Endpoint is one tenant. APIKey is "id:secret".
type Endpoint struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	MaxDuration time.Duration `yaml:"max_duration"`
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

func Default() *Config {
	c := &Config{
		Source:      Endpoint{URL: stormpath.DefaultBaseURL},
		Destination: Endpoint{URL: stormpath.DefaultBaseURL},
		Retry: Retry{
			MinDelay: migrators.DefaultRetryPolicy.MinDelay,
			MaxDelay: migrators.DefaultRetryPolicy.MaxDelay,
		},
	}
	c.Skip.Directories = []string{migrators.DefaultAdminDirectory}
	c.Skip.Applications = []string{migrators.DefaultSystemApplication}
	return c
}

// Load reads the YAML file at path over the defaults. ${VAR} references are
// expanded from the environment first. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	expanded := os.ExpandEnv(string(file))

	dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return c, nil
}

// LoadEnv loads .env files into the process environment. Without arguments
// it reads ./.env when present.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Wrap(err, "loading environment")
	}
	return nil
}

// ApplyEnv fills API keys that the config left empty from the environment.
func (c *Config) ApplyEnv() {
	if c.Source.APIKey == "" {
		c.Source.APIKey = os.Getenv(SourceKeyEnv)
	}
	if c.Destination.APIKey == "" {
		c.Destination.APIKey = os.Getenv(DestinationKeyEnv)
	}
}

func (c *Config) Validate() error {
	for name, e := range map[string]Endpoint{"source": c.Source, "destination": c.Destination} {
		u, err := url.Parse(e.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.Errorf("%s url %q is not an absolute URL", name, e.URL)
		}
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.MaxDuration < 0 {
		return errors.New("retry limits must not be negative")
	}
	if c.Retry.MinDelay < 0 || c.Retry.MaxDelay < 0 {
		return errors.New("retry delays must not be negative")
	}
	if _, err := c.FromDate(); err != nil {
		return err
	}
	return nil
}

// FromDate parses From. The zero time means no date filter.
func (c *Config) FromDate() (time.Time, error) {
	if c.From == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, c.From)
	if err != nil {
		return time.Time{}, errors.Errorf("from date %q is not in YYYY-MM-DD form", c.From)
	}
	return t, nil
}

func (c *Config) RetryPolicy() migrators.RetryPolicy {
	return migrators.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		MaxDuration: c.Retry.MaxDuration,
		MinDelay:    c.Retry.MinDelay,
		MaxDelay:    c.Retry.MaxDelay,
	}
}

// ParseAPIKey splits an "id:secret" credential. Both halves must be set.
func ParseAPIKey(s string) (id, secret string, err error) {
	id, secret, ok := strings.Cut(s, ":")
	if !ok || id == "" || secret == "" {
		return "", "", errors.New("API key must be in id:secret form")
	}
	return id, secret, nil
}
