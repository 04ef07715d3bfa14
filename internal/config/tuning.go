package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Defaults applied by the Get* accessors when a field is absent.
const (
	DefaultGatingDistance    = 200.0
	DefaultMaxMissedFrames   = 30
	DefaultInitialCovariance = 100.0
	DefaultMeasurementNoise  = 0.1
	DefaultProcessNoise      = 0.01
	DefaultAssociationPolicy = "greedy"
	DefaultUnknownName       = "Unknown"
	DefaultStrictness        = 50
)

// DefaultEngagedLabels are the behavioural-state labels that count towards
// the engaged percentage.
var DefaultEngagedLabels = []string{"Focused", "Writing"}

// TuningConfig is the root configuration for the tracker and the attention
// summary. Every field is optional; omitted fields fall back to the Get*
// defaults so partial files are safe.
type TuningConfig struct {
	// Association and lifecycle
	GatingDistance    *float64 `json:"gating_distance,omitempty"`
	MaxMissedFrames   *int     `json:"max_missed_frames,omitempty"`
	AssociationPolicy *string  `json:"association_policy,omitempty"` // "greedy" or "hungarian"

	// Estimator noise (scalar multipliers of identity)
	InitialCovariance *float64 `json:"initial_covariance,omitempty"`
	MeasurementNoise  *float64 `json:"measurement_noise,omitempty"`
	ProcessNoise      *float64 `json:"process_noise,omitempty"`

	// Labels
	UnknownName   *string  `json:"unknown_name,omitempty"`
	EngagedLabels []string `json:"engaged_labels,omitempty"`

	// Attention summary
	Strictness *int `json:"strictness,omitempty"` // 0..100
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the compiled-in defaults.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		GatingDistance:    ptrFloat64(DefaultGatingDistance),
		MaxMissedFrames:   ptrInt(DefaultMaxMissedFrames),
		AssociationPolicy: ptrString(DefaultAssociationPolicy),
		InitialCovariance: ptrFloat64(DefaultInitialCovariance),
		MeasurementNoise:  ptrFloat64(DefaultMeasurementNoise),
		ProcessNoise:      ptrFloat64(DefaultProcessNoise),
		UnknownName:       ptrString(DefaultUnknownName),
		EngagedLabels:     append([]string(nil), DefaultEngagedLabels...),
		Strictness:        ptrInt(DefaultStrictness),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/tracking/debug/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.GatingDistance != nil && *c.GatingDistance <= 0 {
		return fmt.Errorf("gating_distance must be positive, got %f", *c.GatingDistance)
	}
	if c.MaxMissedFrames != nil && *c.MaxMissedFrames < 0 {
		return fmt.Errorf("max_missed_frames must be non-negative, got %d", *c.MaxMissedFrames)
	}
	if c.InitialCovariance != nil && *c.InitialCovariance <= 0 {
		return fmt.Errorf("initial_covariance must be positive, got %f", *c.InitialCovariance)
	}
	if c.MeasurementNoise != nil && *c.MeasurementNoise <= 0 {
		return fmt.Errorf("measurement_noise must be positive, got %f", *c.MeasurementNoise)
	}
	if c.ProcessNoise != nil && *c.ProcessNoise < 0 {
		return fmt.Errorf("process_noise must be non-negative, got %f", *c.ProcessNoise)
	}
	if c.AssociationPolicy != nil {
		switch strings.ToLower(*c.AssociationPolicy) {
		case "greedy", "hungarian":
		default:
			return fmt.Errorf("association_policy must be \"greedy\" or \"hungarian\", got %q", *c.AssociationPolicy)
		}
	}
	if c.UnknownName != nil && strings.TrimSpace(*c.UnknownName) == "" {
		return fmt.Errorf("unknown_name must not be empty")
	}
	if c.Strictness != nil && (*c.Strictness < 0 || *c.Strictness > 100) {
		return fmt.Errorf("strictness must be between 0 and 100, got %d", *c.Strictness)
	}
	return nil
}

// GetGatingDistance returns the gating_distance value or the default.
func (c *TuningConfig) GetGatingDistance() float64 {
	if c.GatingDistance == nil {
		return DefaultGatingDistance
	}
	return *c.GatingDistance
}

// GetMaxMissedFrames returns the max_missed_frames value or the default.
func (c *TuningConfig) GetMaxMissedFrames() int {
	if c.MaxMissedFrames == nil {
		return DefaultMaxMissedFrames
	}
	return *c.MaxMissedFrames
}

// GetAssociationPolicy returns the association_policy value or the default.
func (c *TuningConfig) GetAssociationPolicy() string {
	if c.AssociationPolicy == nil || *c.AssociationPolicy == "" {
		return DefaultAssociationPolicy
	}
	return strings.ToLower(*c.AssociationPolicy)
}

// GetInitialCovariance returns the initial_covariance value or the default.
func (c *TuningConfig) GetInitialCovariance() float64 {
	if c.InitialCovariance == nil {
		return DefaultInitialCovariance
	}
	return *c.InitialCovariance
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return DefaultMeasurementNoise
	}
	return *c.MeasurementNoise
}

// GetProcessNoise returns the process_noise value or the default.
func (c *TuningConfig) GetProcessNoise() float64 {
	if c.ProcessNoise == nil {
		return DefaultProcessNoise
	}
	return *c.ProcessNoise
}

// GetUnknownName returns the unknown_name value or the default.
func (c *TuningConfig) GetUnknownName() string {
	if c.UnknownName == nil {
		return DefaultUnknownName
	}
	return *c.UnknownName
}

// GetEngagedLabels returns a copy of engaged_labels or the default.
func (c *TuningConfig) GetEngagedLabels() []string {
	if len(c.EngagedLabels) == 0 {
		return append([]string(nil), DefaultEngagedLabels...)
	}
	return append([]string(nil), c.EngagedLabels...)
}

// GetStrictness returns the strictness value or the default.
func (c *TuningConfig) GetStrictness() int {
	if c.Strictness == nil {
		return DefaultStrictness
	}
	return *c.Strictness
}
