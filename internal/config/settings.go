// Package config loads settings files, MCP server config files and logging
// configuration for the bridge binaries.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/armatrix/mcp-bridge-go/permission"
)

// Settings holds merged configuration from multiple sources.
// Later sources override earlier ones (user < project).
type Settings struct {
	Model         string         `json:"model,omitempty"`
	SystemPrompt  string         `json:"systemPrompt,omitempty"`
	MaxTokens     int            `json:"maxTokens,omitempty"`
	MaxRounds     int            `json:"maxRounds,omitempty"`
	MaxBudgetUSD  float64        `json:"maxBudgetUSD,omitempty"`
	AllowedTools  []string       `json:"allowedTools,omitempty"`
	DisabledTools []string       `json:"disabledTools,omitempty"`
	LogLevel      string         `json:"logLevel,omitempty"`
	LogFormat     string         `json:"logFormat,omitempty"`
	Custom        map[string]any `json:"custom,omitempty"`
}

// LoadSettings merges settings from multiple JSON file paths.
// Later paths override earlier ones. Missing files are skipped; a file that
// exists but cannot be parsed is an error.
func LoadSettings(paths ...string) (*Settings, error) {
	merged := &Settings{Custom: make(map[string]any)}

	for _, path := range paths {
		s, err := loadSettingsFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		mergeSettings(merged, s)
	}

	return merged, nil
}

// DefaultSettingsPaths returns the standard settings file search paths.
func DefaultSettingsPaths(projectDir string) []string {
	var paths []string

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "mcp-bridge", "settings.json"))
	}
	if projectDir != "" {
		paths = append(paths, filepath.Join(projectDir, ".mcp-bridge", "settings.json"))
	}

	return paths
}

// Policy returns the tool policy described by the settings.
func (s *Settings) Policy() permission.Policy {
	return permission.Policy{Allow: s.AllowedTools, Deny: s.DisabledTools}
}

// Budget returns MaxBudgetUSD as a decimal. Zero means unlimited.
func (s *Settings) Budget() decimal.Decimal {
	if s.MaxBudgetUSD <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(s.MaxBudgetUSD)
}

// Validate checks field values that cannot be enforced by the JSON decoder.
func (s *Settings) Validate() error {
	var errs []error
	if s.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("maxTokens must not be negative, got %d", s.MaxTokens))
	}
	if s.MaxRounds < 0 {
		errs = append(errs, fmt.Errorf("maxRounds must not be negative, got %d", s.MaxRounds))
	}
	if s.MaxBudgetUSD < 0 {
		errs = append(errs, fmt.Errorf("maxBudgetUSD must not be negative, got %v", s.MaxBudgetUSD))
	}
	if _, err := ParseLogLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := s.Policy().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func loadSettingsFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return &s, nil
}

func mergeSettings(dst, src *Settings) {
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.SystemPrompt != "" {
		dst.SystemPrompt = src.SystemPrompt
	}
	if src.MaxTokens > 0 {
		dst.MaxTokens = src.MaxTokens
	}
	if src.MaxRounds > 0 {
		dst.MaxRounds = src.MaxRounds
	}
	if src.MaxBudgetUSD > 0 {
		dst.MaxBudgetUSD = src.MaxBudgetUSD
	}
	if len(src.AllowedTools) > 0 {
		dst.AllowedTools = src.AllowedTools
	}
	if len(src.DisabledTools) > 0 {
		dst.DisabledTools = src.DisabledTools
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.LogFormat != "" {
		dst.LogFormat = src.LogFormat
	}
	for k, v := range src.Custom {
		if dst.Custom == nil {
			dst.Custom = make(map[string]any)
		}
		dst.Custom[k] = v
	}
}
