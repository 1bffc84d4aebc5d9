package telemetry

import (
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig configures query spans.
type DBTracingConfig struct {
	Enabled bool
	// DBSystem is reported as the database name, e.g. "postgresql" or "sqlite".
	DBSystem string
	// WithVariables includes bound query values in span statements.
	WithVariables bool
}

// RegisterDBTracing installs the otelgorm plugin so every query run with a
// traced context becomes a child span carrying the statement, table and row
// count. Bound values are left out unless WithVariables is set.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.WithVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return fmt.Errorf("register otelgorm: %w", err)
	}

	logger.Info("Database tracing enabled",
		zap.String("db_system", cfg.DBSystem),
		zap.Bool("with_variables", cfg.WithVariables),
	)
	return nil
}
