// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridge

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the bridge server settings. Values come from an optional YAML
// file (BRIDGE_CONFIG) with environment variables taking precedence.
type Config struct {
	Port           string        `yaml:"port"`
	RequireAuth    bool          `yaml:"require_auth"`
	JWTSecret      string        `yaml:"jwt_secret"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	PlatformURL    string        `yaml:"platform_url"`
	RedisURL       string        `yaml:"redis_url"`
	DatabaseURL    string        `yaml:"database_url"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	// Monitoring enables best-effort platform registration at startup.
	Monitoring bool `yaml:"monitoring"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() Config {
	return Config{
		Port:           "7777",
		AllowedOrigins: []string{"*"},
		SessionTTL:     24 * time.Hour,
		Monitoring:     true,
	}
}

// LoadConfig builds the effective configuration: defaults, then the YAML
// file named by BRIDGE_CONFIG (when set), then environment overrides.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("BRIDGE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.PlatformURL = getEnv("PLATFORM_URL", cfg.PlatformURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	if v := os.Getenv("REQUIRE_AUTH"); v != "" {
		cfg.RequireAuth = v == "true" || v == "1"
	}
	if v := os.Getenv("MONITORING"); v != "" {
		cfg.Monitoring = v == "true" || v == "1"
	}

	return cfg, nil
}

// getEnv returns the environment value or a fallback.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
