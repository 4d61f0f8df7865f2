package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	appNameEnvVar  = "APP_NAME"
	envEnvVar      = "ENV"
	logLevelEnvVar = "LOG_LEVEL"
)

type EnvVars struct {
	appName  string
	env      string
	logLevel string
}

var _ EnvConfig = EnvVars{}

func loadEnvVars() EnvVars {
	return EnvVars{
		appName:  GetEnv(appNameEnvVar, "Go Auth Client"),
		env:      GetEnv(envEnvVar, "DEV"),
		logLevel: GetEnv(logLevelEnvVar, "info"),
	}
}

func (e EnvVars) GetAppName() string {
	return e.appName
}

func (e EnvVars) GetEnv() string {
	return e.env
}

func (e EnvVars) GetLogLevel() string {
	return e.logLevel
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvBool parses a boolean variable, falling back to defaultValue when unset or malformed.
func GetEnvBool(envVar string, defaultValue bool) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(envVar)))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetEnvDuration parses a duration such as "30s", falling back to defaultValue when unset or malformed.
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(strings.TrimSpace(os.Getenv(envVar)))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
