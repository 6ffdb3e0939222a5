package config

import (
	"os"
	"strconv"
)

// Config configures the bridge.
type Config struct {
	Display              string
	AllowDisplayOverride bool
	MaxDialAttempts      int
	// SessionIdleTimeExpiry is in seconds.
	SessionIdleTimeExpiry int
	LogLevel              string
}

func Load() (*Config, error) {
	display, displayExists := os.LookupEnv("BRIDGE_DISPLAY")
	if !displayExists {
		display = ":0"
	}

	overrideStr, overrideExists := os.LookupEnv("ALLOW_DISPLAY_OVERRIDE")
	if !overrideExists {
		overrideStr = "false"
	}
	allowDisplayOverride, err := strconv.ParseBool(overrideStr)
	if err != nil {
		return nil, err
	}

	maxDialStr, maxDialExists := os.LookupEnv("MAX_DIAL_ATTEMPTS")
	if !maxDialExists {
		maxDialStr = "5"
	}
	maxDialAttempts, err := strconv.Atoi(maxDialStr)
	if err != nil {
		return nil, err
	}

	expiryStr, expiryExists := os.LookupEnv("SESSION_IDLE_TIME_EXPIRY")
	if !expiryExists {
		expiryStr = "30"
	}
	sessionIdleTimeExpiry, err := strconv.Atoi(
		expiryStr,
	)
	if err != nil {
		return nil, err
	}

	logLevel, logLevelExists := os.LookupEnv("LOG_LEVEL")
	if !logLevelExists {
		logLevel = "info"
	}

	return &Config{
		Display:               display,
		AllowDisplayOverride:  allowDisplayOverride,
		MaxDialAttempts:       maxDialAttempts,
		SessionIdleTimeExpiry: sessionIdleTimeExpiry,
		LogLevel:              logLevel,
	}, nil
}
