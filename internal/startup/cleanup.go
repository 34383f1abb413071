// Package startup provides utilities for application startup tasks.
package startup

import (
	"log/slog"
	"time"
)

// DefaultCleanupAge is the age after which scratch files are considered
// orphaned by a previous run.
const DefaultCleanupAge = time.Hour

// WorkspaceSweeper removes scratch workspaces older than a cutoff.
type WorkspaceSweeper interface {
	SweepWorkspaces(cutoff time.Time) ([]string, error)
}

// CleanupOrphanedWorkspaces removes per-request workspaces and stray upload
// files left behind by a crash or restart. Entries newer than maxAge may
// belong to a conversion still running in another process and are kept.
//
// Returns the number of entries removed.
func CleanupOrphanedWorkspaces(logger *slog.Logger, sweeper WorkspaceSweeper, maxAge time.Duration) (int, error) {
	removed, err := sweeper.SweepWorkspaces(time.Now().Add(-maxAge))
	for _, name := range removed {
		logger.Info("removed orphaned workspace", slog.String("name", name))
	}
	if err != nil {
		logger.Warn("workspace cleanup incomplete",
			slog.Int("removed", len(removed)),
			slog.String("error", err.Error()),
		)
		return len(removed), err
	}
	return len(removed), nil
}
