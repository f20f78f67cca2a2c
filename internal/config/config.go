/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	DatabaseURL string `yaml:"database_url"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type AnalysisConfig struct {
	RulesFile string `yaml:"rules_file"`
	FailOn    string `yaml:"fail_on"` // "critical" | "warning" | "none"
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Server        ServerConfig   `yaml:"server"`
	Analysis      AnalysisConfig `yaml:"analysis"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// Fail-on levels for the analyze command exit status.
const (
	FailOnCritical = "critical"
	FailOnWarning  = "warning"
	FailOnNone     = "none"
)

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Server:        ServerConfig{Addr: ":8080", BaseURL: "http://localhost:8080", TimeoutMs: 15000},
		Analysis:      AnalysisConfig{FailOn: FailOnCritical},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvServerAddr      = "SHL_SERVER_ADDR"
	EnvServerURL       = "SHL_SERVER_URL"
	EnvServerTimeoutMs = "SHL_SERVER_TIMEOUT_MS"
	EnvDatabaseURL     = "SHL_DATABASE_URL"
	EnvTelemetryOptIn  = "SHL_TELEMETRY_OPT_IN"
	EnvRulesFile       = "SHL_RULES_FILE"
	EnvFailOn          = "SHL_FAIL_ON"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "SHL_LOG_LEVEL"
	EnvLogFormat = "SHL_LOG_FORMAT"
	EnvLogSource = "SHL_LOG_SOURCE"
	EnvLogFile   = "SHL_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "shotlint"
	keyringToken   = "api_token"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("SHL_CONFIG")); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "shotlint")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "shotlint")
	default: // linux and others
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "shotlint")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "shotlint")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the API token from keyring (not kept inside the struct; returned separately).
// A missing keyring entry or an unavailable keyring yields an empty token.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, "", fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	if v := strings.TrimSpace(os.Getenv("SHL_API_TOKEN")); v != "" {
		tok = v
	}
	return cfg, tok, nil
}

// Save writes the user config YAML and persists the token into OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

// ClearToken removes the stored API token.
func ClearToken() error {
	err := tokenStore.Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if src.Server.Addr != "" {
		dst.Server.Addr = src.Server.Addr
	}
	if src.Server.BaseURL != "" {
		dst.Server.BaseURL = src.Server.BaseURL
	}
	if src.Server.TimeoutMs != 0 {
		dst.Server.TimeoutMs = src.Server.TimeoutMs
	}
	if src.Server.DatabaseURL != "" {
		dst.Server.DatabaseURL = src.Server.DatabaseURL
	}
	if strings.TrimSpace(src.Analysis.RulesFile) != "" {
		dst.Analysis.RulesFile = strings.TrimSpace(src.Analysis.RulesFile)
	}
	if strings.TrimSpace(src.Analysis.FailOn) != "" {
		dst.Analysis.FailOn = strings.ToLower(strings.TrimSpace(src.Analysis.FailOn))
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func parseBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvServerAddr)); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerURL)); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Server.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvRulesFile)); v != "" {
		cfg.Analysis.RulesFile = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvFailOn)); v != "" {
		cfg.Analysis.FailOn = strings.ToLower(v)
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envKeys = map[string]string{
	"server.addr":              EnvServerAddr,
	"server.base_url":          EnvServerURL,
	"server.timeout_ms":        EnvServerTimeoutMs,
	"server.database_url":      EnvDatabaseURL,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"analysis.rules_file":      EnvRulesFile,
	"analysis.fail_on":         EnvFailOn,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Timeout returns the client timeout, falling back to the default.
func (s ServerConfig) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return time.Duration(Defaults().Server.TimeoutMs) * time.Millisecond
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}
