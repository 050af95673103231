package logging

import (
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/models"
	"gorm.io/gorm"
)

// CleanupOlderThan deletes system_logs older than the retention window.
func CleanupOlderThan(db *gorm.DB, retention time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-retention)
	result := db.Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		slog.Error("log cleanup failed", "error", result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		slog.Info("log cleanup completed", "deleted", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
