// Package config defines the application settings and loads them from a
// TOML file.
package config

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config holds every setting of one application run.
type Config struct {
	// Paths are notebook files or directories searched for .hcl files.
	Paths []string `toml:"paths" validate:"min=1,dive,required"`

	LogLevel  string `toml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `toml:"log_format" validate:"oneof=text json"`
	Output    string `toml:"output" validate:"oneof=text json yaml"`

	// Timeout bounds how long a run waits for cells to settle. Zero waits
	// forever.
	Timeout time.Duration `toml:"timeout" validate:"gte=0"`
	// Roots are extra names cells may read without a definition.
	Roots     []string `toml:"roots" validate:"dive,required"`
	// Ignore drops cells whose name, or module:name label, matches one of
	// these glob patterns before the graph is built.
	Ignore    []string `toml:"ignore" validate:"dive,required,glob"`
	KeepGoing bool     `toml:"keep_going"`
	Watch     bool     `toml:"watch"`

	HealthcheckPort int `toml:"healthcheck_port" validate:"gte=0,lte=65535"`

	Publish Publish `toml:"publish"`
	Tracing Tracing `toml:"tracing"`
}

// Publish configures streaming of cell transitions.
type Publish struct {
	URL                string        `toml:"url" validate:"omitempty,url"`
	Namespace          string        `toml:"namespace"`
	Event              string        `toml:"event"`
	InsecureSkipVerify bool          `toml:"insecure_skip_verify"`
	ConnectTimeout     time.Duration `toml:"connect_timeout" validate:"gte=0"`
}

// Tracing selects where evaluation spans are exported.
type Tracing struct {
	Exporter     string `toml:"exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string `toml:"otlp_endpoint" validate:"required_if=Exporter otlp"`
	OTLPInsecure bool   `toml:"otlp_insecure"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Paths:     []string{"."},
		LogLevel:  "info",
		LogFormat: "text",
		Output:    "text",
		Timeout:   30 * time.Second,
		Publish: Publish{
			Event:          "cell",
			ConnectTimeout: 15 * time.Second,
		},
		Tracing: Tracing{Exporter: "none"},
	}
}

// Load returns the defaults overlaid with the TOML file at path. An empty
// path returns the defaults. Unknown keys are errors.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("glob", func(fl validator.FieldLevel) bool {
		_, err := path.Match(fl.Field().String(), "")
		return err == nil
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
	c.Output = strings.ToLower(c.Output)
	c.Tracing.Exporter = strings.ToLower(c.Tracing.Exporter)

	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	slices.Sort(msgs)
	return fmt.Errorf("invalid configuration:\n- %s", strings.Join(msgs, "\n- "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "required", "required_if":
		return fmt.Sprintf("%s must not be empty", field)
	case "glob":
		return fmt.Sprintf("%s is not a valid glob pattern: %q", field, fe.Value())
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", field, fe.Value())
	case "gte", "lte":
		return fmt.Sprintf("%s must be %s %s, got %v", field, map[string]string{"gte": ">=", "lte": "<="}[fe.Tag()], fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed the %q check", field, fe.Tag())
}
