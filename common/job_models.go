package common

import (
	"time"

	"gorm.io/gorm"
)

// Job statuses shared by import and export jobs
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// ImportJob tracks a load of the NEO and close-approach feeds
type ImportJob struct {
	ID             string     `gorm:"primaryKey;type:text" json:"id"`
	IdempotencyKey string     `gorm:"uniqueIndex;not null" json:"idempotency_key"`
	Status         string     `gorm:"not null" json:"status"` // pending, processing, completed, failed
	NEOPath        string     `json:"neo_path"`
	CADPath        string     `json:"cad_path"`
	NEOCount       int        `gorm:"default:0" json:"neo_count"`
	ApproachCount  int        `gorm:"default:0" json:"approach_count"`
	Errors         string     `gorm:"type:text" json:"errors,omitempty"` // JSON array of RecordValidationResult
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// ExportJob tracks a filtered export of close approaches to a file
type ExportJob struct {
	ID             string     `gorm:"primaryKey;type:text" json:"id"`
	IdempotencyKey string     `gorm:"uniqueIndex;not null" json:"idempotency_key"`
	Format         string     `gorm:"not null" json:"format"`             // csv, json, ndjson
	Filters        string     `gorm:"type:text" json:"filters,omitempty"` // JSON filters
	Status         string     `gorm:"not null" json:"status"`
	FilePath       string     `json:"file_path,omitempty"`
	DownloadURL    string     `json:"download_url,omitempty"`
	TotalRecords   int        `gorm:"default:0" json:"total_records"`
	Error          string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// ApiMetric tracks API performance metrics
type ApiMetric struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Endpoint      string    `gorm:"not null" json:"endpoint"`
	Method        string    `gorm:"not null" json:"method"`
	StatusCode    int       `gorm:"not null" json:"status_code"`
	DurationMs    int       `gorm:"not null" json:"duration_ms"`
	RowsProcessed int       `gorm:"default:0" json:"rows_processed"`
	Errors        string    `gorm:"type:text" json:"errors,omitempty"`
	Timestamp     time.Time `gorm:"not null" json:"timestamp"`
}

func (ImportJob) TableName() string { return "import_jobs" }
func (ExportJob) TableName() string { return "export_jobs" }
func (ApiMetric) TableName() string { return "api_metrics" }

// AutoMigrateJobs creates job tracking tables
func AutoMigrateJobs(db *gorm.DB) error {
	return db.AutoMigrate(&ImportJob{}, &ExportJob{}, &ApiMetric{})
}
