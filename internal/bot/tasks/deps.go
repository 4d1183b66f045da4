// Package tasks implements the scheduled housekeeping jobs run against the
// conversation backend.
package tasks

import (
	"log/slog"

	"github.com/edgard/transcriptbot/internal/config"
	"github.com/edgard/transcriptbot/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Backend database.Backend
	Config  *config.Config
}
