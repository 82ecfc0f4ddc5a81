/*
PURPOSE:
  Defines the configuration structure and loading logic for fio-tuner.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Configure the fio executable, job file and optional client file.
  - Tune the search: improvement threshold, window, safeguard limits.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs to support Environment variables overrides (FIO_TUNER_...).
  - Each trial needs a deadline derived from the job runtime plus a grace margin.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: github.com/spf13/viper (layering), gopkg.in/yaml.v3 (defaults, dump),
    github.com/adrg/xdg (config search path), github.com/go-playground/validator/v10 (rules)

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - A missing config file is not an error when no path was given (defaults apply).

IMPLEMENTATION RULES:
  - Every field carries both yaml and mapstructure tags with the same name.
  - Range rules live in validate tags (go-playground/validator); errors name the YAML key.
  - Defaults live in DefaultConfig() only; viper is seeded from it.

USAGE:
  cfg, err := config.Load("fio_tuner.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update DefaultConfig().

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/daryltucker/fio-tuner/internal/model"
)

// AppName names the config directory and the default config file.
const AppName = "fio-tuner"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FIO_TUNER"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

var validate = newValidator()

// SearchConfig tunes the adaptive search.
type SearchConfig struct {
	// Threshold is the ratio a trial must strictly exceed (1.05 = 5% gain).
	Threshold float64 `yaml:"threshold" mapstructure:"threshold" validate:"gt=1"`
	// Window is how many preceding iodepth trials a new trial is compared to.
	Window int `yaml:"window" mapstructure:"window" validate:"min=1"`
	// OuterWindow is the same for numjobs levels.
	OuterWindow int `yaml:"outer_window" mapstructure:"outer_window" validate:"min=1"`
	// MinQueueDepthRuns forces this many iodepth trials before a plateau can stop a level.
	MinQueueDepthRuns int `yaml:"min_queue_depth_runs" mapstructure:"min_queue_depth_runs" validate:"min=0"`
	// MinJobCountRuns forces this many numjobs levels before the search can stop.
	MinJobCountRuns int `yaml:"min_job_count_runs" mapstructure:"min_job_count_runs" validate:"min=0"`
	MaxQueueDepth   int `yaml:"max_queue_depth" mapstructure:"max_queue_depth" validate:"min=1"`
	MaxJobCount     int `yaml:"max_job_count" mapstructure:"max_job_count" validate:"min=1"`
	// BestPolicy is "predecessor" or "highest".
	BestPolicy string `yaml:"best_policy" mapstructure:"best_policy" validate:"best_policy"`
}

// LogConfig configures the console logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Config represents the full configuration for fio-tuner.
type Config struct {
	FioPath    string `yaml:"fio_path" mapstructure:"fio_path" validate:"required"`
	JobFile    string `yaml:"job_file" mapstructure:"job_file" validate:"required"`
	ClientFile string `yaml:"client_file" mapstructure:"client_file"`

	// OutputDir holds the trial log, report and metrics files. Their names
	// are resolved with OutputPath.
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"`
	TrialsFile  string `yaml:"trials_file" mapstructure:"trials_file"`
	ReportFile  string `yaml:"report_file" mapstructure:"report_file"`
	MetricsFile string `yaml:"metrics_file" mapstructure:"metrics_file"`

	// Runtime is the per-trial runtime configured in the job file.
	Runtime      time.Duration `yaml:"runtime" mapstructure:"runtime" validate:"gte=0s"`
	TimeoutGrace time.Duration `yaml:"timeout_grace" mapstructure:"timeout_grace" validate:"gte=0s"`
	SettleDelay  time.Duration `yaml:"settle_delay" mapstructure:"settle_delay" validate:"gte=0s"`

	Search SearchConfig `yaml:"search" mapstructure:"search"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// DefaultSearchConfig returns the search defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Threshold:     1.05,
		Window:        3,
		OuterWindow:   1,
		MaxQueueDepth: 256,
		MaxJobCount:   128,
		BestPolicy:    string(model.PolicyPredecessor),
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		FioPath:      "fio",
		JobFile:      "fio.job",
		ClientFile:   "client.txt",
		OutputDir:    ".",
		TrialsFile:   "fio_trials.csv",
		ReportFile:   "fio_tuner_report.json",
		Runtime:      120 * time.Second,
		TimeoutGrace: 60 * time.Second,
		SettleDelay:  1 * time.Second,
		Search:       DefaultSearchConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a file, layered over the defaults and
// under FIO_TUNER_* environment variables.
// If path is specified, it must exist.
// If path is empty, fio_tuner.yaml is searched in the working directory
// and then in $XDG_CONFIG_HOME/fio-tuner. If no file is found, defaults apply.
func Load(path string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fio_tuner")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper returns a viper instance seeded with DefaultConfig(). Seeding
// through YAML registers every key, so AutomaticEnv can override nested
// keys (FIO_TUNER_SEARCH_THRESHOLD).
func newViper() (*viper.Viper, error) {
	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// OutputPath resolves an output file name: relative names land in
// OutputDir, absolute paths are used as given. Empty stays empty (disabled).
func (c *Config) OutputPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}

// TrialTimeout is the hard deadline for one trial.
func (c *Config) TrialTimeout() time.Duration {
	return c.Runtime + c.TimeoutGrace
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := check(c); err != nil {
		return err
	}
	if c.TrialTimeout() <= 0 {
		return fmt.Errorf("%w: runtime + timeout_grace must be positive", ErrInvalid)
	}
	return nil
}

// Validate checks the search parameters.
func (s SearchConfig) Validate() error {
	return check(s)
}

// check runs the struct tag rules and reports the first violation by its
// YAML key, e.g. "search.threshold".
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	fe := verrs[0]
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}
	rule := fe.Tag()
	if fe.Param() != "" {
		rule += "=" + fe.Param()
	}
	return fmt.Errorf("%w: %s must satisfy %s (got %v)", ErrInvalid, key, rule, fe.Value())
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("best_policy", func(fl validator.FieldLevel) bool {
		_, err := model.ParseBestPolicy(fl.Field().String())
		return err == nil
	})
	return v
}

// Dump renders c as YAML.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}
