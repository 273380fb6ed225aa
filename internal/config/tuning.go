package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical processing defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/autoveto.defaults.json"

// TuningConfig represents the root configuration for run processing.
// Fields omitted from the JSON stay nil and fall back to the built-in
// defaults through the Get* accessors, so partial configs are safe.
type TuningConfig struct {
	// Calibration params
	ThresholdMargin *int `json:"threshold_margin,omitempty"`

	// LED characterization params
	LEDSimpleThreshold *int `json:"led_simple_threshold,omitempty"`
	LEDMultipMargin    *int `json:"led_multip_margin,omitempty"`

	// Muon classification params
	EnergyThreshold *int `json:"energy_threshold,omitempty"`
	EnergyPanels    *int `json:"energy_panels,omitempty"`

	// I/O locations
	DataDir   *string `json:"data_dir,omitempty"`   // run dump files
	OutputDB  *string `json:"output_db,omitempty"`  // SQLite results database
	PlotsDir  *string `json:"plots_dir,omitempty"`  // diagnostic plot output
	RunDBHost *string `json:"rundb_host,omitempty"` // empty disables the SQL catalog
	RunDBUser *string `json:"rundb_user,omitempty"`
	RunDBPass *string `json:"rundb_pass,omitempty"`
	RunDBName *string `json:"rundb_name,omitempty"`
}

// Helper functions to create pointers
func ptrInt(v int) *int          { return &v }
func ptrString(v string) *string { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ThresholdMargin != nil && *c.ThresholdMargin < 0 {
		return fmt.Errorf("threshold_margin must be non-negative, got %d", *c.ThresholdMargin)
	}

	if c.LEDSimpleThreshold != nil {
		if *c.LEDSimpleThreshold < 0 || *c.LEDSimpleThreshold > 32 {
			return fmt.Errorf("led_simple_threshold must be between 0 and 32, got %d", *c.LEDSimpleThreshold)
		}
	}

	if c.LEDMultipMargin != nil && *c.LEDMultipMargin < 0 {
		return fmt.Errorf("led_multip_margin must be non-negative, got %d", *c.LEDMultipMargin)
	}

	if c.EnergyThreshold != nil && *c.EnergyThreshold < 0 {
		return fmt.Errorf("energy_threshold must be non-negative, got %d", *c.EnergyThreshold)
	}

	if c.EnergyPanels != nil {
		if *c.EnergyPanels < 1 || *c.EnergyPanels > 32 {
			return fmt.Errorf("energy_panels must be between 1 and 32, got %d", *c.EnergyPanels)
		}
	}

	return nil
}

// GetThresholdMargin returns the threshold_margin value or the default.
func (c *TuningConfig) GetThresholdMargin() int {
	if c.ThresholdMargin == nil {
		return 35 // default
	}
	return *c.ThresholdMargin
}

// GetLEDSimpleThreshold returns the led_simple_threshold value or the default.
func (c *TuningConfig) GetLEDSimpleThreshold() int {
	if c.LEDSimpleThreshold == nil {
		return 10 // default
	}
	return *c.LEDSimpleThreshold
}

// GetLEDMultipMargin returns the led_multip_margin value or the default.
func (c *TuningConfig) GetLEDMultipMargin() int {
	if c.LEDMultipMargin == nil {
		return 5 // default
	}
	return *c.LEDMultipMargin
}

// GetEnergyThreshold returns the energy_threshold value or the default.
func (c *TuningConfig) GetEnergyThreshold() int {
	if c.EnergyThreshold == nil {
		return 500 // default
	}
	return *c.EnergyThreshold
}

// GetEnergyPanels returns the energy_panels value or the default.
func (c *TuningConfig) GetEnergyPanels() int {
	if c.EnergyPanels == nil {
		return 2 // default
	}
	return *c.EnergyPanels
}

// GetDataDir returns the data_dir value or the default.
func (c *TuningConfig) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return "."
	}
	return *c.DataDir
}

// GetOutputDB returns the output_db value or the default.
func (c *TuningConfig) GetOutputDB() string {
	if c.OutputDB == nil || *c.OutputDB == "" {
		return "autoveto.db"
	}
	return *c.OutputDB
}

// GetPlotsDir returns the plots_dir value or the default.
func (c *TuningConfig) GetPlotsDir() string {
	if c.PlotsDir == nil || *c.PlotsDir == "" {
		return "plots"
	}
	return *c.PlotsDir
}

// GetRunDBHost returns the rundb_host value; empty means no run database.
func (c *TuningConfig) GetRunDBHost() string {
	if c.RunDBHost == nil {
		return ""
	}
	return *c.RunDBHost
}

// GetRunDBUser returns the rundb_user value or the default.
func (c *TuningConfig) GetRunDBUser() string {
	if c.RunDBUser == nil {
		return "vetoread"
	}
	return *c.RunDBUser
}

// GetRunDBPass returns the rundb_pass value or the default.
func (c *TuningConfig) GetRunDBPass() string {
	if c.RunDBPass == nil {
		return ""
	}
	return *c.RunDBPass
}

// GetRunDBName returns the rundb_name value or the default.
func (c *TuningConfig) GetRunDBName() string {
	if c.RunDBName == nil {
		return "vetodaq"
	}
	return *c.RunDBName
}
