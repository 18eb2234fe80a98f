package config

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the daemon's zap logger from the "logging" section of the
// loaded settings. "logging.level" selects the minimum severity (debug, info,
// warn, error) and "logging.format" picks the encoder: "json" for the
// production encoder, "console" for human-readable output during development.
func NewLogger(v *viper.Viper) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(v.GetString("logging.level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", v.GetString("logging.level"), err)
	}

	var zc zap.Config
	switch format := v.GetString("logging.format"); format {
	case "json", "":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q: must be \"json\" or \"console\"", format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
