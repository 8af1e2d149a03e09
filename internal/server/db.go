// Package server manages the OpenScale persistence layer.
// It initializes GORM with SQLite and stores metric samples and applied
// scale events for the operator API.
package server

import (
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kelvas/openscale/internal/config"
	"github.com/kelvas/openscale/internal/models"
	"github.com/kelvas/openscale/internal/scaler"
)

var DB *gorm.DB

// InitDB opens the database and runs AutoMigrate.
func InitDB(cfg *config.Config) error {
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&models.MetricSample{}, &models.ScaleEvent{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	DB = db
	log.Printf("[db] opened sqlite/%s", cfg.DBPath)
	return nil
}

// SaveSample persists one metrics snapshot.
func SaveSample(m scaler.SystemMetrics, source, hostname string) error {
	row := &models.MetricSample{
		Source:            source,
		Hostname:          hostname,
		CPUUsage:          m.CPUUsage,
		MemoryUsage:       m.MemoryUsage,
		DiskUsage:         m.DiskUsage,
		NetworkIO:         m.NetworkIO,
		ActiveConnections: m.ActiveConnections,
		ResponseTime:      m.ResponseTime,
		SampledAt:         m.Timestamp,
	}
	return DB.Create(row).Error
}

// RecordEvent persists one applied scaling action.
func RecordEvent(action scaler.Action, from, to int, confidence float64, avg scaler.WindowAverages) error {
	row := &models.ScaleEvent{
		Action:          string(action),
		FromInstances:   from,
		ToInstances:     to,
		Confidence:      confidence,
		AvgCPU:          avg.CPUUsage,
		AvgMemory:       avg.MemoryUsage,
		AvgResponseTime: avg.ResponseTime,
		AppliedAt:       time.Now(),
	}
	return DB.Create(row).Error
}

// RecentSamples returns the latest limit samples, newest first.
func RecentSamples(limit int) ([]models.MetricSample, error) {
	var rows []models.MetricSample
	err := DB.Order("sampled_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// RecentEvents returns the latest limit scale events, newest first.
func RecentEvents(limit int) ([]models.ScaleEvent, error) {
	var rows []models.ScaleEvent
	err := DB.Order("applied_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}
