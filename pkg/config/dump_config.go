package config

import (
	"os"
	"strconv"
)

// DumpConfig configures the capture decoder.
type DumpConfig struct {
	// MaxMessageBytes bounds one decoded message. Zero keeps the wire
	// package default.
	MaxMessageBytes int
	LogLevel        string
}

func LoadForDump() (*DumpConfig, error) {
	maxBytesStr, maxBytesExists := os.LookupEnv("MAX_MESSAGE_BYTES")
	if !maxBytesExists {
		maxBytesStr = "0"
	}
	maxMessageBytes, err := strconv.Atoi(maxBytesStr)
	if err != nil {
		return nil, err
	}

	logLevel, logLevelExists := os.LookupEnv("LOG_LEVEL")
	if !logLevelExists {
		logLevel = "info"
	}

	return &DumpConfig{
		MaxMessageBytes: maxMessageBytes,
		LogLevel:        logLevel,
	}, nil
}
