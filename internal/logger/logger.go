package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger creates the default zap logger for the service. It falls back to
// a no-op logger rather than failing startup when the production encoder
// cannot be built.
func NewLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// NewProductionLogger creates a JSON-encoded logger for deployed instances
func NewProductionLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build production logger: %w", err)
	}
	return logger, nil
}

// NewDevelopmentLogger creates a console-encoded logger for local runs
func NewDevelopmentLogger() (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build development logger: %w", err)
	}
	return logger, nil
}

// ForComponent returns a child logger tagged with the component name so log
// lines can be traced back to the emitting subsystem.
func ForComponent(logger *zap.Logger, component string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("component", component))
}
