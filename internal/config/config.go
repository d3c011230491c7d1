// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vitebski/catchment-insights/internal/apperrors"
	"github.com/vitebski/catchment-insights/internal/connector"
	"github.com/vitebski/catchment-insights/internal/executor"
	"github.com/vitebski/catchment-insights/internal/utils"
)

const (
	defaultEnvironment      = "production"
	defaultVisualizationDir = "./visualizations"
	defaultHTTPAddr         = ":5051"
	defaultModel            = "gpt-4o"
	defaultMaxTokens        = 2000
)

// DatabaseConfig describes the local database used in dev mode
type DatabaseConfig struct {
	Driver   string `validate:"oneof=mysql sqlite"`
	Host     string `validate:"required_if=Driver mysql"`
	Port     string `validate:"omitempty,numeric"`
	User     string `validate:"required_if=Driver mysql"`
	Password string
	Name     string `validate:"required_if=Driver mysql"`
	Path     string `validate:"required_if=Driver sqlite"`
}

// ProxyConfig describes the remote query proxy used outside dev mode
type ProxyConfig struct {
	BaseURL     string `validate:"required,url"`
	ProjectID   string `validate:"required"`
	DatasetID   string `validate:"required"`
	IdentityURL string `validate:"omitempty,url"`
}

// LLMConfig describes the completion service
type LLMConfig struct {
	APIKey    string
	BaseURL   string `validate:"omitempty,url"`
	Model     string `validate:"required"`
	MaxTokens int    `validate:"gte=0"`
}

// Config holds every setting of the service
type Config struct {
	Environment      string         `validate:"required"`
	Database         DatabaseConfig `validate:"-"`
	Proxy            ProxyConfig    `validate:"-"`
	LLM              LLMConfig
	VisualizationDir string `validate:"required"`
	HTTPAddr         string `validate:"required"`
	MaxRows          int    `validate:"gt=0"`
	TimeoutMs        int    `validate:"gt=0"`
	SchemaFile       string `validate:"omitempty,file"`
}

// FromEnv builds a configuration from environment variables
func FromEnv() Config {
	return Config{
		Environment: getEnv("CATCHMENT_ENV", defaultEnvironment),
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", connector.DriverMySQL),
			Host:     getEnv("DB_HOST", "127.0.0.1"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnv("DB_NAME", "schools"),
			Path:     os.Getenv("DB_PATH"),
		},
		Proxy: ProxyConfig{
			BaseURL:     os.Getenv("PROXY_BASE_URL"),
			ProjectID:   os.Getenv("GCP_PROJECT_ID"),
			DatasetID:   getEnv("GCP_DATASET_ID", "schools"),
			IdentityURL: os.Getenv("METADATA_IDENTITY_URL"),
		},
		LLM: LLMConfig{
			APIKey:    os.Getenv("LLM_API_KEY"),
			BaseURL:   os.Getenv("LLM_BASE_URL"),
			Model:     getEnv("LLM_MODEL", defaultModel),
			MaxTokens: utils.GetEnvInt("LLM_MAX_TOKENS", defaultMaxTokens),
		},
		VisualizationDir: getEnv("VISUALIZATION_DIR", defaultVisualizationDir),
		HTTPAddr:         getEnv("HTTP_ADDR", defaultHTTPAddr),
		MaxRows:          utils.GetEnvInt("QUERY_MAX_ROWS", 10000),
		TimeoutMs:        utils.GetEnvInt("QUERY_TIMEOUT_MS", 30000),
		SchemaFile:       os.Getenv("SCHEMA_FILE"),
	}
}

// IsLocal reports whether queries go to the local database
func (c Config) IsLocal() bool {
	return c.Environment == executor.EnvironmentDev
}

// Validate checks the settings needed for the configured mode
func (c Config) Validate() error {
	v := validator.New()

	targets := []any{c}
	if c.IsLocal() {
		targets = append(targets, c.Database)
	} else {
		targets = append(targets, c.Proxy)
	}

	var problems []string
	for _, target := range targets {
		if err := v.Struct(target); err != nil {
			problems = append(problems, Describe(err)...)
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return apperrors.New(apperrors.InvalidInput, "invalid configuration: "+strings.Join(problems, ", "))
	}
	return nil
}

// RequireLLM checks that the completion service can be reached
func (c Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return apperrors.New(apperrors.InvalidInput, "LLM_API_KEY is required for this command")
	}
	return nil
}

// Describe turns validator failures into "Field: tag" messages
func Describe(err error) []string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		messages = append(messages, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return messages
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
