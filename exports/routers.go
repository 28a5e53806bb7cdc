package exports

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"neo-import-export/common"
	"neo-import-export/index"
	"neo-import-export/logger"
)

// Handler serves close-approach exports from a catalog
type Handler struct {
	Catalog    *index.Catalog
	ExportsDir string
}

// RegisterRoutes mounts the export endpoints
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/exports", h.StreamExport)
	rg.POST("/exports", h.CreateExport)
	rg.GET("/exports/:job_id", h.GetExport)
	rg.GET("/exports/:job_id/download", h.DownloadExport)
}

// StreamExport godoc
// @Summary Stream export data (synchronous)
// @Description Streams the matching close approaches directly in CSV, JSON or NDJSON format
// @Tags exports
// @Produce text/csv
// @Produce json
// @Produce application/x-ndjson
// @Param format query string true "Export format (csv, json or ndjson)"
// @Param date query string false "Approach date (YYYY-MM-DD)"
// @Param start_date query string false "Earliest approach date"
// @Param end_date query string false "Latest approach date"
// @Param hazardous query bool false "Only (non-)hazardous NEOs"
// @Param limit query int false "Maximum number of approaches"
// @Success 200 {file} file "Streaming export data"
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 503 {object} map[string]string "No feeds loaded"
// @Router /exports [get]
func (h *Handler) StreamExport(c *gin.Context) {
	format, err := ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format parameter must be one of: csv, json, ndjson"})
		return
	}

	var params index.QueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filters, err := params.Filters()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := h.Catalog.Current()
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No feeds loaded"})
		return
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("close_approaches_%s.%s", timestamp, format)

	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	// Rows go straight to the response writer; the encoders flush every FlushEvery rows
	c.Status(http.StatusOK)
	count, err := Encode(c.Writer, format, index.Limit(db.Query(filters...), params.Limit))
	if err != nil {
		logger.Error("stream export failed", zap.Error(err), zap.Int("written", count))
		_ = c.Error(err)
	}
	c.Set("rows_processed", count)
}

// CreateExportRequest represents the request for async export
type CreateExportRequest struct {
	IdempotencyKey string            `json:"idempotency_key" binding:"required"`
	Format         string            `json:"format" binding:"required,oneof=csv json ndjson"`
	Filters        index.QueryParams `json:"filters"`
}

// CreateExportResponse represents the response for async export creation
type CreateExportResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateExport godoc
// @Summary Create async export job
// @Description Creates an export job that writes the filtered approaches to a file with a download URL
// @Tags exports
// @Accept json
// @Produce json
// @Param export body CreateExportRequest true "Export configuration"
// @Success 202 {object} CreateExportResponse "Export job created"
// @Success 200 {object} CreateExportResponse "Existing job returned (idempotency)"
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /exports [post]
func (h *Handler) CreateExport(c *gin.Context) {
	var req CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := req.Filters.Options(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Check idempotency
	var existingJob common.ExportJob
	result := common.GetDB().Where("idempotency_key = ?", req.IdempotencyKey).First(&existingJob)
	if result.Error == nil {
		c.JSON(http.StatusOK, CreateExportResponse{
			JobID:     existingJob.ID,
			Status:    existingJob.Status,
			CreatedAt: existingJob.CreatedAt,
		})
		return
	}

	filtersJSON, _ := json.Marshal(req.Filters)

	job := common.ExportJob{
		ID:             uuid.New().String(),
		IdempotencyKey: req.IdempotencyKey,
		Format:         req.Format,
		Filters:        string(filtersJSON),
		Status:         common.JobStatusPending,
		CreatedAt:      time.Now(),
	}

	if err := common.GetDB().Create(&job).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create export job"})
		return
	}

	// Start async export processing
	go h.ProcessExportJob(job.ID)

	c.JSON(http.StatusAccepted, CreateExportResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	})
}

// GetExport godoc
// @Summary Get export job status
// @Description Retrieves the status and download URL of an export job
// @Tags exports
// @Produce json
// @Param job_id path string true "Export Job ID"
// @Success 200 {object} map[string]interface{} "Export job details with download URL"
// @Failure 404 {object} map[string]string "Job not found"
// @Router /exports/{job_id} [get]
func (h *Handler) GetExport(c *gin.Context) {
	job, ok := findJob(c)
	if !ok {
		return
	}

	// Set rows processed for metrics
	c.Set("rows_processed", job.TotalRecords)

	response := gin.H{
		"job_id":        job.ID,
		"format":        job.Format,
		"status":        job.Status,
		"total_records": job.TotalRecords,
		"created_at":    job.CreatedAt,
	}

	if job.Filters != "" {
		response["filters"] = json.RawMessage(job.Filters)
	}
	if job.CompletedAt != nil {
		response["completed_at"] = job.CompletedAt
	}
	if job.DownloadURL != "" {
		response["download_url"] = job.DownloadURL
	}
	if job.Error != "" {
		response["error"] = job.Error
	}

	c.JSON(http.StatusOK, response)
}

// DownloadExport godoc
// @Summary Download a completed export
// @Tags exports
// @Produce octet-stream
// @Param job_id path string true "Export Job ID"
// @Success 200 {file} file "Export file"
// @Failure 404 {object} map[string]string "Job not found"
// @Failure 409 {object} map[string]string "Export not completed"
// @Router /exports/{job_id}/download [get]
func (h *Handler) DownloadExport(c *gin.Context) {
	job, ok := findJob(c)
	if !ok {
		return
	}
	if job.Status != common.JobStatusCompleted || job.FilePath == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "Export is not completed", "status": job.Status})
		return
	}
	c.Set("rows_processed", job.TotalRecords)
	c.FileAttachment(job.FilePath, filepath.Base(job.FilePath))
}

func findJob(c *gin.Context) (common.ExportJob, bool) {
	var job common.ExportJob
	if err := common.GetDB().Where("id = ?", c.Param("job_id")).First(&job).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Export job not found"})
		return job, false
	}
	return job, true
}

// ProcessExportJob writes an export job's file in the background
func (h *Handler) ProcessExportJob(jobID string) {
	db := common.GetDB()
	log := logger.With(zap.String("job_id", jobID))

	var job common.ExportJob
	if err := db.Where("id = ?", jobID).First(&job).Error; err != nil {
		log.Error("export job not found", zap.Error(err))
		return
	}

	job.Status = common.JobStatusProcessing
	db.Save(&job)

	path, count, err := h.export(&job)

	now := time.Now()
	job.CompletedAt = &now
	job.TotalRecords = count
	if err != nil {
		job.Status = common.JobStatusFailed
		job.Error = err.Error()
		log.Warn("export failed", zap.Error(err))
	} else {
		job.Status = common.JobStatusCompleted
		job.FilePath = path
		job.DownloadURL = fmt.Sprintf("/api/v1/exports/%s/download", job.ID)
	}
	db.Save(&job)
}

func (h *Handler) export(job *common.ExportJob) (string, int, error) {
	db := h.Catalog.Current()
	if db == nil {
		return "", 0, common.NewError(common.ErrorTypeNotFound, "no feeds loaded")
	}

	var params index.QueryParams
	if job.Filters != "" {
		if err := json.Unmarshal([]byte(job.Filters), &params); err != nil {
			return "", 0, common.WrapError(err, common.ErrorTypeConfig, "decode export filters")
		}
	}
	filters, err := params.Filters()
	if err != nil {
		return "", 0, err
	}

	if err := os.MkdirAll(h.ExportsDir, 0750); err != nil {
		return "", 0, common.WrapError(err, common.ErrorTypeIO, "create exports dir")
	}
	path := filepath.Join(h.ExportsDir, ExportFilename(job.ID, job.CreatedAt, Format(job.Format)))

	count, err := Write(index.Limit(db.Query(filters...), params.Limit), path)
	return path, count, err
}

// ExportFilename names an export file, e.g. close-approaches-1a2b3c4d-20240101-120000.csv
func ExportFilename(jobID string, createdAt time.Time, format Format) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	base := slug.Make(fmt.Sprintf("close approaches %s %s", short, createdAt.Format("20060102 150405")))
	return base + "." + string(format)
}
