// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Recalc   RecalcConfig   `yaml:"recalc" mapstructure:"recalc"`
	Survey   SurveyConfig   `yaml:"survey" mapstructure:"survey"`
	Schedule ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ScoringConfig holds the weights for the path scoring factors.
// Weights sum to 100.
type ScoringConfig struct {
	CapitalFitWeight  float64 `yaml:"capital_fit_weight" mapstructure:"capital_fit_weight"`
	TimelineFitWeight float64 `yaml:"timeline_fit_weight" mapstructure:"timeline_fit_weight"`
	RiskAlignWeight   float64 `yaml:"risk_align_weight" mapstructure:"risk_align_weight"`
	TrackRecordWeight float64 `yaml:"track_record_weight" mapstructure:"track_record_weight"`
	ConfidenceWeight  float64 `yaml:"confidence_weight" mapstructure:"confidence_weight"`
}

// WeightSum returns the sum of all factor weights.
func (c ScoringConfig) WeightSum() float64 {
	return c.CapitalFitWeight + c.TimelineFitWeight + c.RiskAlignWeight +
		c.TrackRecordWeight + c.ConfidenceWeight
}

// Validate checks that a ScoringConfig is internally consistent.
func (c ScoringConfig) Validate() error {
	var errs []string

	weights := map[string]float64{
		"capital_fit_weight":  c.CapitalFitWeight,
		"timeline_fit_weight": c.TimelineFitWeight,
		"risk_align_weight":   c.RiskAlignWeight,
		"track_record_weight": c.TrackRecordWeight,
		"confidence_weight":   c.ConfidenceWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	sum := c.WeightSum()
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	if math.Abs(sum-100) > 1 {
		errs = append(errs, fmt.Sprintf("weights should sum to 100, got %.1f", sum))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: scoring validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RecalcConfig configures the metric recalculator.
type RecalcConfig struct {
	// MinNewOutcomes is the number of new completed outcomes since the last
	// aggregation that triggers a recalculation.
	MinNewOutcomes int `yaml:"min_new_outcomes" mapstructure:"min_new_outcomes"`
	// MaxParallel bounds concurrent per-path recalculations in a sweep.
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel"`
}

// SurveyConfig configures outcome survey scheduling.
type SurveyConfig struct {
	// FollowUpDays is how long after an exploration the survey is scheduled.
	FollowUpDays int `yaml:"follow_up_days" mapstructure:"follow_up_days"`
	// ExpireDays is how long a sent survey stays open before expiring.
	ExpireDays int `yaml:"expire_days" mapstructure:"expire_days"`
	// DispatchPerSecond rate-limits handoff to the mail collaborator.
	DispatchPerSecond float64 `yaml:"dispatch_per_second" mapstructure:"dispatch_per_second"`
	// DispatchBatch is the maximum surveys sent per dispatch run.
	DispatchBatch int `yaml:"dispatch_batch" mapstructure:"dispatch_batch"`
}

// ScheduleConfig holds cron specs for the periodic jobs run by serve.
type ScheduleConfig struct {
	RecalcSpec       string `yaml:"recalc_spec" mapstructure:"recalc_spec"`
	SurveySendSpec   string `yaml:"survey_send_spec" mapstructure:"survey_send_spec"`
	SurveyExpireSpec string `yaml:"survey_expire_spec" mapstructure:"survey_expire_spec"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PATHLIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("scoring.capital_fit_weight", 25)
	v.SetDefault("scoring.timeline_fit_weight", 20)
	v.SetDefault("scoring.risk_align_weight", 20)
	v.SetDefault("scoring.track_record_weight", 25)
	v.SetDefault("scoring.confidence_weight", 10)
	v.SetDefault("recalc.min_new_outcomes", 5)
	v.SetDefault("recalc.max_parallel", 4)
	v.SetDefault("survey.follow_up_days", 90)
	v.SetDefault("survey.expire_days", 30)
	v.SetDefault("survey.dispatch_per_second", 2)
	v.SetDefault("survey.dispatch_batch", 100)
	v.SetDefault("schedule.recalc_spec", "0 3 * * *")
	v.SetDefault("schedule.survey_send_spec", "0 * * * *")
	v.SetDefault("schedule.survey_expire_spec", "30 3 * * *")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
