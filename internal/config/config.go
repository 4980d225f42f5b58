// Package config loads the process configuration from defaults, an optional
// .env file and ALLOCATE_ prefixed environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/rhyrak/go-allocate/internal/objective"
)

const EnvPrefix = "ALLOCATE"

type SolverConfig struct {
	// Backend names the live solver: gophersat, cbc or scip.
	Backend    string        `mapstructure:"backend" validate:"required,oneof=gophersat cbc scip"`
	CBCBinary  string        `mapstructure:"cbc_binary"`
	SCIPBinary string        `mapstructure:"scip_binary"`
	TimeLimit  time.Duration `mapstructure:"time_limit" validate:"min=0"`
	// ObjectiveScale multiplies objective weights for backends that need integers.
	ObjectiveScale float64 `mapstructure:"objective_scale" validate:"gt=0"`
}

type SchedulingConfig struct {
	DefaultCap    int               `mapstructure:"default_cap" validate:"min=0"`
	Compatibility string            `mapstructure:"compatibility" validate:"oneof=strict relaxed"`
	Weights       objective.Weights `mapstructure:"weights"`
}

type MatchingConfig struct {
	CATSLimit int               `mapstructure:"cats_limit" validate:"min=0"`
	Weights   objective.Weights `mapstructure:"weights"`
}

type StoreConfig struct {
	Kind string `mapstructure:"kind" validate:"oneof=memory postgres"`
	DSN  string `mapstructure:"dsn" validate:"required_if=Kind postgres"`
}

type NotifyConfig struct {
	Kind        string `mapstructure:"kind" validate:"oneof=none console sendgrid"`
	SendgridKey string `mapstructure:"sendgrid_key" validate:"required_if=Kind sendgrid"`
	AppName     string `mapstructure:"app_name"`
	From        string `mapstructure:"from" validate:"omitempty,email"`
	// Recipients is a comma separated address list.
	Recipients string `mapstructure:"recipients"`
}

type RollbarConfig struct {
	Token string `mapstructure:"token"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=1"`
	Interval    time.Duration `mapstructure:"interval" validate:"min=0"`
}

// Configuration holds every tunable of the engine.
type Configuration struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	Solver     SolverConfig     `mapstructure:"solver"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	Store      StoreConfig      `mapstructure:"store"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Rollbar    RollbarConfig    `mapstructure:"rollbar"`
	Retry      RetryConfig      `mapstructure:"retry"`

	Workers     int    `mapstructure:"workers" validate:"min=1"`
	HTTPAddr    string `mapstructure:"http_addr" validate:"required"`
	ArtifactDir string `mapstructure:"artifact_dir"`
	// DataRoot holds one snapshot directory per attempt input.
	DataRoot    string `mapstructure:"data_root" validate:"required"`
}

func NewDefaultConfiguration() *Configuration {
	return &Configuration{
		Env:      "dev",
		LogLevel: "info",
		Solver: SolverConfig{
			Backend:        "gophersat",
			CBCBinary:      "cbc",
			SCIPBinary:     "scip",
			TimeLimit:      10 * time.Minute,
			ObjectiveScale: 100,
		},
		Scheduling: SchedulingConfig{
			DefaultCap:    4,
			Compatibility: "strict",
			Weights:       objective.Weights{Occupancy: 1, IfNeeded: 5, Tension: 1, Idle: 1},
		},
		Matching: MatchingConfig{
			CATSLimit: 100,
			Weights:   objective.Weights{Tension: 1, Preference: 1},
		},
		Store:    StoreConfig{Kind: "memory"},
		Notify:   NotifyConfig{Kind: "console", AppName: "Allocate", From: "noreply@localhost.localdomain"},
		Retry:    RetryConfig{MaxAttempts: 3, Interval: 5 * time.Second},
		Workers:  2,
		HTTPAddr: ":8080",
		DataRoot: "./data",
	}
}

// Load reads configuration for env. When dir holds a .env.<env> file it is
// loaded into the process environment first. An empty env uses ALLOCATE_ENV,
// defaulting to dev.
func Load(dir, env string) (*Configuration, error) {
	if env == "" {
		env = os.Getenv(EnvPrefix + "_ENV")
	}
	if env == "" {
		env = "dev"
	}
	env = strings.ToLower(env)

	dotEnvPath := filepath.Join(dir, ".env."+env)
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, NewDefaultConfiguration())

	cfg := &Configuration{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}
	cfg.Env = env
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Configuration) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_json", d.LogJSON)

	v.SetDefault("solver.backend", d.Solver.Backend)
	v.SetDefault("solver.cbc_binary", d.Solver.CBCBinary)
	v.SetDefault("solver.scip_binary", d.Solver.SCIPBinary)
	v.SetDefault("solver.time_limit", d.Solver.TimeLimit)
	v.SetDefault("solver.objective_scale", d.Solver.ObjectiveScale)

	v.SetDefault("scheduling.default_cap", d.Scheduling.DefaultCap)
	v.SetDefault("scheduling.compatibility", d.Scheduling.Compatibility)
	weightDefaults(v, "scheduling.weights", d.Scheduling.Weights)

	v.SetDefault("matching.cats_limit", d.Matching.CATSLimit)
	weightDefaults(v, "matching.weights", d.Matching.Weights)

	v.SetDefault("store.kind", d.Store.Kind)
	v.SetDefault("store.dsn", d.Store.DSN)

	v.SetDefault("notify.kind", d.Notify.Kind)
	v.SetDefault("notify.sendgrid_key", d.Notify.SendgridKey)
	v.SetDefault("notify.app_name", d.Notify.AppName)
	v.SetDefault("notify.from", d.Notify.From)
	v.SetDefault("notify.recipients", d.Notify.Recipients)

	v.SetDefault("rollbar.token", d.Rollbar.Token)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.interval", d.Retry.Interval)

	v.SetDefault("workers", d.Workers)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("artifact_dir", d.ArtifactDir)
	v.SetDefault("data_root", d.DataRoot)
}

func weightDefaults(v *viper.Viper, prefix string, w objective.Weights) {
	v.SetDefault(prefix+".occupancy", w.Occupancy)
	v.SetDefault(prefix+".if_needed", w.IfNeeded)
	v.SetDefault(prefix+".tension", w.Tension)
	v.SetDefault(prefix+".idle", w.Idle)
	v.SetDefault(prefix+".preference", w.Preference)
}

// Validate checks field constraints.
func (c *Configuration) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}
