// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the continuum daemon configuration
type Config struct {
	InstanceID    string          `mapstructure:"instance_id"`
	Build         BuildConfig     `mapstructure:"build"`
	Tasks         []TaskConfig    `mapstructure:"tasks"`
	QuietPeriod   time.Duration   `mapstructure:"quiet_period"`
	WebServer     WebServerConfig `mapstructure:"web_server"`
	Notifications bool            `mapstructure:"notifications"`
	CollectErrors bool            `mapstructure:"collect_errors"`
}

// BuildConfig describes the command to run for each build cycle
type BuildConfig struct {
	Command    string   `mapstructure:"command"`
	Args       []string `mapstructure:"args"`
	WorkingDir string   `mapstructure:"working_dir"`
}

// TaskConfig declares a named task and the input roots it reads from.
// The roots are fingerprinted after each build and watched for changes.
type TaskConfig struct {
	Name  string   `mapstructure:"name"`
	Roots []string `mapstructure:"roots"`
}

// WebServerConfig holds status server settings
type WebServerConfig struct {
	Port int `mapstructure:"port"`
}

// DefaultQuietPeriod is the idle time required after the last relevant
// change before a rebuild is triggered.
const DefaultQuietPeriod = 250 * time.Millisecond

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	// A local .env may carry overrides; its absence is not an error
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Skipping .env: %v", err)
	}

	viper.SetConfigType("yaml")
	viper.SetConfigName("config")

	viper.SetDefault("quiet_period", DefaultQuietPeriod)
	viper.SetDefault("web_server.port", 9180)
	viper.SetDefault("notifications", true)
	viper.SetDefault("collect_errors", false)
	viper.SetDefault("build.command", "make")
	viper.SetDefault("build.working_dir", ".")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		configDir, err := Dir()
		if err != nil {
			return nil, err
		}
		configFile := filepath.Join(configDir, "config.yaml")
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			if err := generateDefaultConfig(configFile); err != nil {
				return nil, fmt.Errorf("failed to generate default config: %w", err)
			}
		}
		viper.SetConfigFile(configFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	viper.SetEnvPrefix("CONTINUUM")
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.QuietPeriod < 0 {
		return nil, fmt.Errorf("quiet_period must not be negative, got %s", config.QuietPeriod)
	}
	if config.Build.Command == "" {
		return nil, fmt.Errorf("build.command must be set")
	}

	// Generate instance_id on first run and persist it
	if config.InstanceID == "" {
		config.InstanceID = uuid.New().String()
		log.Printf("Generated new instance ID: %s", config.InstanceID)
		viper.Set("instance_id", config.InstanceID)
		if err := viper.WriteConfig(); err != nil {
			log.Printf("Warning: Failed to save instance_id to config file: %v", err)
		}
	}

	return &config, nil
}

// Dir returns the continuum config directory, creating it if needed
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Join(home, ".continuum")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// ApplyCLIFlags applies command-line flags to override config values
func ApplyCLIFlags(config *Config, command string, workingDir string, quietPeriod time.Duration, webPort int) {
	if command != "" {
		config.Build.Command = command
	}
	if workingDir != "" {
		config.Build.WorkingDir = workingDir
	}
	if quietPeriod > 0 {
		config.QuietPeriod = quietPeriod
	}
	if webPort > 0 {
		config.WebServer.Port = webPort
	}
}

// generateDefaultConfig creates a default configuration file
func generateDefaultConfig(configFile string) error {
	defaultConfig := `# Continuum continuous build configuration
# instance_id will be auto-generated on first run

build:
  command: "make"       # Build command to run each cycle
  args: []              # Arguments for the build command
  working_dir: "."      # Directory to run the build in

# Tasks declare which file system roots the build reads from. Each
# task's roots are fingerprinted after a build and watched for changes.
tasks:
  - name: "compile"
    roots:
      - "./src"

quiet_period: 250ms     # Idle time after the last change before rebuilding

web_server:
  port: 9180            # Status UI / API port

notifications: true     # Desktop notification on build failure
collect_errors: false   # Collect hook errors instead of failing the cycle
`

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return err
	}
	return os.WriteFile(configFile, []byte(defaultConfig), 0644)
}
