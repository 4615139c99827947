package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 25, cfg.Scoring.CapitalFitWeight, 0.001)
	assert.InDelta(t, 20, cfg.Scoring.TimelineFitWeight, 0.001)
	assert.InDelta(t, 20, cfg.Scoring.RiskAlignWeight, 0.001)
	assert.InDelta(t, 25, cfg.Scoring.TrackRecordWeight, 0.001)
	assert.InDelta(t, 10, cfg.Scoring.ConfidenceWeight, 0.001)
	assert.InDelta(t, 100, cfg.Scoring.WeightSum(), 0.001)
	assert.Equal(t, 5, cfg.Recalc.MinNewOutcomes)
	assert.Equal(t, 4, cfg.Recalc.MaxParallel)
	assert.Equal(t, 90, cfg.Survey.FollowUpDays)
	assert.Equal(t, 30, cfg.Survey.ExpireDays)
	assert.Equal(t, 100, cfg.Survey.DispatchBatch)
	assert.Equal(t, "0 3 * * *", cfg.Schedule.RecalcSpec)
	assert.Equal(t, "0 * * * *", cfg.Schedule.SurveySendSpec)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
recalc:
  min_new_outcomes: 8
survey:
  follow_up_days: 60
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Recalc.MinNewOutcomes)
	assert.Equal(t, 60, cfg.Survey.FollowUpDays)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Survey.ExpireDays)
	assert.InDelta(t, 25, cfg.Scoring.CapitalFitWeight, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PATHLIGHT_STORE_DRIVER", "postgres")
	t.Setenv("PATHLIGHT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("PATHLIGHT_RECALC_MIN_NEW_OUTCOMES", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Recalc.MinNewOutcomes)
}

func TestScoringValidate(t *testing.T) {
	valid := ScoringConfig{
		CapitalFitWeight:  25,
		TimelineFitWeight: 20,
		RiskAlignWeight:   20,
		TrackRecordWeight: 25,
		ConfidenceWeight:  10,
	}
	assert.NoError(t, valid.Validate())
}

func TestScoringValidateNegativeWeight(t *testing.T) {
	cfg := ScoringConfig{
		CapitalFitWeight:  -5,
		TimelineFitWeight: 30,
		RiskAlignWeight:   20,
		TrackRecordWeight: 45,
		ConfidenceWeight:  10,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capital_fit_weight")
}

func TestScoringValidateBadSum(t *testing.T) {
	cfg := ScoringConfig{
		CapitalFitWeight:  25,
		TimelineFitWeight: 20,
		RiskAlignWeight:   20,
		TrackRecordWeight: 25,
		ConfidenceWeight:  30,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 100")
}

func TestScoringValidateZero(t *testing.T) {
	err := ScoringConfig{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weight sum must be > 0")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
