package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultDetectionConfigPath is the path to the canonical detection defaults
// file. This is the single source of truth for all default threshold values.
const DefaultDetectionConfigPath = "config/detection.defaults.json"

// DetectionConfig holds the detection thresholds and ingest tuning for the
// anomaly pipeline. All fields are pointers so a partial JSON file can
// override just a few values; the Get* methods supply defaults for the rest.
type DetectionConfig struct {
	// Teleport (tier 1) thresholds by gap length
	TeleportSpeedKnotsShort  *float64 `json:"teleport_speed_knots_short,omitempty"`
	TeleportSpeedKnotsMedium *float64 `json:"teleport_speed_knots_medium,omitempty"`
	TeleportDtShortMaxSec    *int     `json:"teleport_dt_short_max_sec,omitempty"`
	TeleportDtMediumMaxSec   *int     `json:"teleport_dt_medium_max_sec,omitempty"`
	TeleportDtLongMaxSec     *int     `json:"teleport_dt_long_max_sec,omitempty"`

	// Teleport (tier 2) suspicious band
	TeleportSuspiciousMinKnots *float64 `json:"teleport_suspicious_min_knots,omitempty"`

	// Turn rate thresholds
	MaxTurnRateDegPerSec           *float64 `json:"max_turn_rate_deg_per_sec,omitempty"`
	MaxTurnRateHighSpeedDegPerSec  *float64 `json:"max_turn_rate_high_speed_deg_per_sec,omitempty"`
	MinSpeedForTurnCheckKnots      *float64 `json:"min_speed_for_turn_check_knots,omitempty"`
	MinSpeedForTurnCheckLowKnots   *float64 `json:"min_speed_for_turn_check_low_knots,omitempty"`
	TurnRateDtMinSec               *float64 `json:"turn_rate_dt_min_sec,omitempty"`
	TurnRateSuspiciousMinDegPerSec *float64 `json:"turn_rate_suspicious_min_deg_per_sec,omitempty"`

	// Kinematic consistency thresholds
	MaxAccelKnotsPerSec               *float64 `json:"max_accel_knots_per_sec,omitempty"`
	SogImpliedSpeedDiffThresholdKnots *float64 `json:"sog_implied_speed_diff_threshold_knots,omitempty"`
	PositionOutlierDistanceKm         *float64 `json:"position_outlier_distance_km,omitempty"`

	// Alerting and replay tuning
	AlertCooldownSec     *int     `json:"alert_cooldown_sec,omitempty"`
	DefaultBatchSize     *int     `json:"default_batch_size,omitempty"`
	StreamingThresholdMB *float64 `json:"streaming_threshold_mb,omitempty"`
	ChunkSize            *int     `json:"chunk_size,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyDetectionConfig returns a DetectionConfig with all fields set to nil.
// Use LoadDetectionConfig to load actual values from a file.
func EmptyDetectionConfig() *DetectionConfig {
	return &DetectionConfig{}
}

// LoadDetectionConfig loads a DetectionConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadDetectionConfig(path string) (*DetectionConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyDetectionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical detection defaults from
// DefaultDetectionConfigPath. It searches for the file in the current
// directory and common parent directories. Panics if the file cannot be
// loaded, intended for test setup.
func MustLoadDefaultConfig() *DetectionConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultDetectionConfigPath,
		"../../" + DefaultDetectionConfigPath,    // from internal/config/
		"../../../" + DefaultDetectionConfigPath, // from internal/ais/rules/
		"../../../../" + DefaultDetectionConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadDetectionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultDetectionConfigPath + " - run tests from repository root")
}

func checkPositiveFinite(name string, v float64, max float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be finite, got %f", name, v)
	}
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, v)
	}
	if v > max {
		return fmt.Errorf("%s too large: %f (max %f)", name, v, max)
	}
	return nil
}

// Validate checks that all set threshold values are positive, finite and
// within sane upper bounds, and that tiered thresholds are ordered.
func (c *DetectionConfig) Validate() error {
	floatChecks := []struct {
		name string
		v    *float64
		max  float64
	}{
		{"teleport_speed_knots_short", c.TeleportSpeedKnotsShort, 2000},
		{"teleport_speed_knots_medium", c.TeleportSpeedKnotsMedium, 2000},
		{"teleport_suspicious_min_knots", c.TeleportSuspiciousMinKnots, 2000},
		{"max_turn_rate_deg_per_sec", c.MaxTurnRateDegPerSec, 360},
		{"max_turn_rate_high_speed_deg_per_sec", c.MaxTurnRateHighSpeedDegPerSec, 360},
		{"min_speed_for_turn_check_knots", c.MinSpeedForTurnCheckKnots, 2000},
		{"min_speed_for_turn_check_low_knots", c.MinSpeedForTurnCheckLowKnots, 2000},
		{"turn_rate_dt_min_sec", c.TurnRateDtMinSec, 3600},
		{"turn_rate_suspicious_min_deg_per_sec", c.TurnRateSuspiciousMinDegPerSec, 360},
		{"max_accel_knots_per_sec", c.MaxAccelKnotsPerSec, 1000},
		{"sog_implied_speed_diff_threshold_knots", c.SogImpliedSpeedDiffThresholdKnots, 2000},
		{"position_outlier_distance_km", c.PositionOutlierDistanceKm, 40075},
		{"streaming_threshold_mb", c.StreamingThresholdMB, 10240},
	}
	for _, fc := range floatChecks {
		if fc.v == nil {
			continue
		}
		if err := checkPositiveFinite(fc.name, *fc.v, fc.max); err != nil {
			return err
		}
	}

	intChecks := []struct {
		name string
		v    *int
		max  int
	}{
		{"teleport_dt_short_max_sec", c.TeleportDtShortMaxSec, 86400},
		{"teleport_dt_medium_max_sec", c.TeleportDtMediumMaxSec, 86400},
		{"teleport_dt_long_max_sec", c.TeleportDtLongMaxSec, 86400},
		{"alert_cooldown_sec", c.AlertCooldownSec, 7 * 86400},
		{"default_batch_size", c.DefaultBatchSize, 1000000},
		{"chunk_size", c.ChunkSize, 10000000},
	}
	for _, ic := range intChecks {
		if ic.v == nil {
			continue
		}
		if *ic.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", ic.name, *ic.v)
		}
		if *ic.v > ic.max {
			return fmt.Errorf("%s too large: %d (max %d)", ic.name, *ic.v, ic.max)
		}
	}

	// Tier ordering: short gap before medium before long, and bands below
	// their tier-1 thresholds.
	if c.GetTeleportDtShortMaxSec() >= c.GetTeleportDtMediumMaxSec() {
		return fmt.Errorf("teleport_dt_short_max_sec must be below teleport_dt_medium_max_sec")
	}
	if c.GetTeleportDtMediumMaxSec() >= c.GetTeleportDtLongMaxSec() {
		return fmt.Errorf("teleport_dt_medium_max_sec must be below teleport_dt_long_max_sec")
	}
	if c.GetTeleportSuspiciousMinKnots() >= c.GetTeleportSpeedKnotsShort() {
		return fmt.Errorf("teleport_suspicious_min_knots must be below teleport_speed_knots_short")
	}
	if c.GetTeleportSpeedKnotsShort() >= c.GetTeleportSpeedKnotsMedium() {
		return fmt.Errorf("teleport_speed_knots_short must be below teleport_speed_knots_medium")
	}
	if c.GetTurnRateSuspiciousMinDegPerSec() >= c.GetMaxTurnRateDegPerSec() {
		return fmt.Errorf("turn_rate_suspicious_min_deg_per_sec must be below max_turn_rate_deg_per_sec")
	}
	if c.GetMinSpeedForTurnCheckLowKnots() >= c.GetMinSpeedForTurnCheckKnots() {
		return fmt.Errorf("min_speed_for_turn_check_low_knots must be below min_speed_for_turn_check_knots")
	}

	return nil
}

// GetTeleportSpeedKnotsShort returns the teleport_speed_knots_short value or the default.
func (c *DetectionConfig) GetTeleportSpeedKnotsShort() float64 {
	if c.TeleportSpeedKnotsShort == nil {
		return 60.0
	}
	return *c.TeleportSpeedKnotsShort
}

// GetTeleportSpeedKnotsMedium returns the teleport_speed_knots_medium value or the default.
func (c *DetectionConfig) GetTeleportSpeedKnotsMedium() float64 {
	if c.TeleportSpeedKnotsMedium == nil {
		return 100.0
	}
	return *c.TeleportSpeedKnotsMedium
}

// GetTeleportDtShortMaxSec returns the teleport_dt_short_max_sec value or the default.
func (c *DetectionConfig) GetTeleportDtShortMaxSec() int {
	if c.TeleportDtShortMaxSec == nil {
		return 120
	}
	return *c.TeleportDtShortMaxSec
}

// GetTeleportDtMediumMaxSec returns the teleport_dt_medium_max_sec value or the default.
func (c *DetectionConfig) GetTeleportDtMediumMaxSec() int {
	if c.TeleportDtMediumMaxSec == nil {
		return 1800
	}
	return *c.TeleportDtMediumMaxSec
}

// GetTeleportDtLongMaxSec returns the teleport_dt_long_max_sec value or the default.
func (c *DetectionConfig) GetTeleportDtLongMaxSec() int {
	if c.TeleportDtLongMaxSec == nil {
		return 3600
	}
	return *c.TeleportDtLongMaxSec
}

// GetTeleportSuspiciousMinKnots returns the teleport_suspicious_min_knots value or the default.
func (c *DetectionConfig) GetTeleportSuspiciousMinKnots() float64 {
	if c.TeleportSuspiciousMinKnots == nil {
		return 40.0
	}
	return *c.TeleportSuspiciousMinKnots
}

// GetMaxTurnRateDegPerSec returns the max_turn_rate_deg_per_sec value or the default.
func (c *DetectionConfig) GetMaxTurnRateDegPerSec() float64 {
	if c.MaxTurnRateDegPerSec == nil {
		return 3.0
	}
	return *c.MaxTurnRateDegPerSec
}

// GetMaxTurnRateHighSpeedDegPerSec returns the max_turn_rate_high_speed_deg_per_sec value or the default.
func (c *DetectionConfig) GetMaxTurnRateHighSpeedDegPerSec() float64 {
	if c.MaxTurnRateHighSpeedDegPerSec == nil {
		return 20.0
	}
	return *c.MaxTurnRateHighSpeedDegPerSec
}

// GetMinSpeedForTurnCheckKnots returns the min_speed_for_turn_check_knots value or the default.
func (c *DetectionConfig) GetMinSpeedForTurnCheckKnots() float64 {
	if c.MinSpeedForTurnCheckKnots == nil {
		return 10.0
	}
	return *c.MinSpeedForTurnCheckKnots
}

// GetMinSpeedForTurnCheckLowKnots returns the min_speed_for_turn_check_low_knots value or the default.
func (c *DetectionConfig) GetMinSpeedForTurnCheckLowKnots() float64 {
	if c.MinSpeedForTurnCheckLowKnots == nil {
		return 3.0
	}
	return *c.MinSpeedForTurnCheckLowKnots
}

// GetTurnRateDtMinSec returns the turn_rate_dt_min_sec value or the default.
func (c *DetectionConfig) GetTurnRateDtMinSec() float64 {
	if c.TurnRateDtMinSec == nil {
		return 2.0
	}
	return *c.TurnRateDtMinSec
}

// GetTurnRateSuspiciousMinDegPerSec returns the turn_rate_suspicious_min_deg_per_sec value or the default.
func (c *DetectionConfig) GetTurnRateSuspiciousMinDegPerSec() float64 {
	if c.TurnRateSuspiciousMinDegPerSec == nil {
		return 1.0
	}
	return *c.TurnRateSuspiciousMinDegPerSec
}

// GetMaxAccelKnotsPerSec returns the max_accel_knots_per_sec value or the default.
func (c *DetectionConfig) GetMaxAccelKnotsPerSec() float64 {
	if c.MaxAccelKnotsPerSec == nil {
		return 5.0
	}
	return *c.MaxAccelKnotsPerSec
}

// GetSogImpliedSpeedDiffThresholdKnots returns the sog_implied_speed_diff_threshold_knots value or the default.
func (c *DetectionConfig) GetSogImpliedSpeedDiffThresholdKnots() float64 {
	if c.SogImpliedSpeedDiffThresholdKnots == nil {
		return 20.0
	}
	return *c.SogImpliedSpeedDiffThresholdKnots
}

// GetPositionOutlierDistanceKm returns the position_outlier_distance_km value or the default.
func (c *DetectionConfig) GetPositionOutlierDistanceKm() float64 {
	if c.PositionOutlierDistanceKm == nil {
		return 1000.0
	}
	return *c.PositionOutlierDistanceKm
}

// GetAlertCooldownSec returns the alert_cooldown_sec value or the default.
func (c *DetectionConfig) GetAlertCooldownSec() int {
	if c.AlertCooldownSec == nil {
		return 300
	}
	return *c.AlertCooldownSec
}

// GetDefaultBatchSize returns the default_batch_size value or the default.
func (c *DetectionConfig) GetDefaultBatchSize() int {
	if c.DefaultBatchSize == nil {
		return 100
	}
	return *c.DefaultBatchSize
}

// GetStreamingThresholdMB returns the streaming_threshold_mb value or the default.
func (c *DetectionConfig) GetStreamingThresholdMB() float64 {
	if c.StreamingThresholdMB == nil {
		return 50.0
	}
	return *c.StreamingThresholdMB
}

// GetChunkSize returns the chunk_size value or the default.
func (c *DetectionConfig) GetChunkSize() int {
	if c.ChunkSize == nil {
		return 10000
	}
	return *c.ChunkSize
}
