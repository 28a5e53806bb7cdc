package imports

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"neo-import-export/common"
	"neo-import-export/index"
	"neo-import-export/logger"
	"neo-import-export/neos"
)

// Handler serves import jobs and NEO lookups against a catalog
type Handler struct {
	Catalog    *index.Catalog
	UploadsDir string
	NEOPath    string // default NEO feed
	CADPath    string // default close-approach feed
}

// CreateImportRequest is the JSON body of POST /imports. Empty fields fall back to the configured feeds.
type CreateImportRequest struct {
	NEOPath string `json:"neo_path"`
	CADPath string `json:"cad_path"`
	CADURL  string `json:"cad_url"` // Optional: download the close-approach feed
}

// CreateImportResponse represents the response for import job creation
type CreateImportResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// GetImportResponse represents the response for import job status
type GetImportResponse struct {
	JobID         string                          `json:"job_id"`
	Status        string                          `json:"status"`
	NEOPath       string                          `json:"neo_path"`
	CADPath       string                          `json:"cad_path"`
	NEOCount      int                             `json:"neo_count"`
	ApproachCount int                             `json:"approach_count"`
	Errors        []common.RecordValidationResult `json:"errors,omitempty"`
	CreatedAt     string                          `json:"created_at"`
	UpdatedAt     string                          `json:"updated_at"`
	CompletedAt   *string                         `json:"completed_at,omitempty"`
}

// RegisterRoutes mounts the import and lookup endpoints
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/imports", h.CreateImport)
	rg.GET("/imports/:job_id", h.GetImport)
	rg.GET("/neos/:designation", h.GetNEO)
}

// CreateImport godoc
// @Summary Reload the NEO and close-approach feeds
// @Description Creates an import job from uploaded files (neo_file, cad_file), server paths, or a CAD URL
// @Tags imports
// @Accept multipart/form-data
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Unique key to prevent duplicate imports"
// @Success 202 {object} CreateImportResponse "Import job created"
// @Success 200 {object} CreateImportResponse "Existing job returned (idempotency)"
// @Failure 400 {object} map[string]string "Bad request"
// @Router /imports [post]
func (h *Handler) CreateImport(c *gin.Context) {
	db := common.GetDB()

	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header is required"})
		return
	}

	var existingJob common.ImportJob
	if err := db.Where("idempotency_key = ?", idempotencyKey).First(&existingJob).Error; err == nil {
		c.JSON(http.StatusOK, CreateImportResponse{
			JobID:     existingJob.ID,
			Status:    existingJob.Status,
			CreatedAt: existingJob.CreatedAt.Format(time.RFC3339),
		})
		return
	}

	neoPath, cadPath := h.NEOPath, h.CADPath

	if strings.HasPrefix(c.GetHeader("Content-Type"), "multipart/form-data") {
		if header, err := c.FormFile("neo_file"); err == nil {
			path, err := h.saveUpload(header, ".csv")
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
				return
			}
			neoPath = path
		}
		if header, err := c.FormFile("cad_file"); err == nil {
			path, err := h.saveUpload(header, ".json")
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
				return
			}
			cadPath = path
		}
	} else if c.Request.ContentLength != 0 {
		var req CreateImportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		for _, p := range []string{req.NEOPath, req.CADPath} {
			if p != "" && !h.allowedPath(p) {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("path %q is outside the feed and upload directories", p)})
				return
			}
		}
		if req.NEOPath != "" {
			neoPath = req.NEOPath
		}
		if req.CADPath != "" {
			cadPath = req.CADPath
		}
		if req.CADURL != "" {
			path := h.uploadPath(".json")
			if err := downloadFile(req.CADURL, path); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Failed to download file: %v", err)})
				return
			}
			cadPath = path
		}
	}

	now := time.Now()
	job := common.ImportJob{
		ID:             uuid.New().String(),
		IdempotencyKey: idempotencyKey,
		Status:         common.JobStatusPending,
		NEOPath:        neoPath,
		CADPath:        cadPath,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := db.Create(&job).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create import job"})
		return
	}

	go h.ProcessImportJob(job.ID)

	c.JSON(http.StatusAccepted, CreateImportResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	})
}

// GetImport godoc
// @Summary Get import job status
// @Tags imports
// @Produce json
// @Param job_id path string true "Import Job ID"
// @Success 200 {object} GetImportResponse "Import job details"
// @Failure 404 {object} map[string]string "Job not found"
// @Router /imports/{job_id} [get]
func (h *Handler) GetImport(c *gin.Context) {
	var job common.ImportJob
	if err := common.GetDB().Where("id = ?", c.Param("job_id")).First(&job).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import job not found"})
		return
	}

	c.Set("rows_processed", job.NEOCount+job.ApproachCount)

	response := GetImportResponse{
		JobID:         job.ID,
		Status:        job.Status,
		NEOPath:       job.NEOPath,
		CADPath:       job.CADPath,
		NEOCount:      job.NEOCount,
		ApproachCount: job.ApproachCount,
		CreatedAt:     job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     job.UpdatedAt.Format(time.RFC3339),
	}

	if job.CompletedAt != nil {
		completedStr := job.CompletedAt.Format(time.RFC3339)
		response.CompletedAt = &completedStr
	}

	if job.Errors != "" {
		var errors []common.RecordValidationResult
		if err := json.Unmarshal([]byte(job.Errors), &errors); err == nil {
			response.Errors = errors
		}
	}

	c.JSON(http.StatusOK, response)
}

// NEOResponse is a NEO with its close approaches
type NEOResponse struct {
	*neos.NearEarthObject
	Approaches []ApproachSummary `json:"approaches"`
}

// ApproachSummary is one close approach of a looked-up NEO
type ApproachSummary struct {
	DatetimeUTC string  `json:"datetime_utc"`
	DistanceAU  float64 `json:"distance_au"`
	VelocityKmS float64 `json:"velocity_km_s"`
}

// GetNEO godoc
// @Summary Look up a NEO by designation (or by name with ?by=name)
// @Tags neos
// @Produce json
// @Param designation path string true "Primary designation or name"
// @Success 200 {object} NEOResponse
// @Failure 404 {object} map[string]string "NEO not found"
// @Failure 503 {object} map[string]string "No feeds loaded"
// @Router /neos/{designation} [get]
func (h *Handler) GetNEO(c *gin.Context) {
	db := h.Catalog.Current()
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No feeds loaded"})
		return
	}

	key := c.Param("designation")
	var neo *neos.NearEarthObject
	if c.Query("by") == "name" {
		neo = db.GetNEOByName(key)
	} else {
		neo = db.GetNEOByDesignation(key)
	}
	if neo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NEO not found"})
		return
	}

	response := NEOResponse{NearEarthObject: neo, Approaches: make([]ApproachSummary, 0, len(neo.Approaches))}
	for _, approach := range neo.Approaches {
		when, _ := common.DatetimeToStr(approach.Time)
		response.Approaches = append(response.Approaches, ApproachSummary{
			DatetimeUTC: when,
			DistanceAU:  approach.Distance,
			VelocityKmS: approach.Velocity,
		})
	}
	c.Set("rows_processed", len(response.Approaches))
	c.JSON(http.StatusOK, response)
}

// ProcessImportJob loads the job's feeds and publishes the result to the catalog
func (h *Handler) ProcessImportJob(jobID string) {
	db := common.GetDB()
	log := logger.With(zap.String("job_id", jobID))

	var job common.ImportJob
	if err := db.Where("id = ?", jobID).First(&job).Error; err != nil {
		log.Error("import job not found", zap.Error(err))
		return
	}

	job.Status = common.JobStatusProcessing
	job.UpdatedAt = time.Now()
	db.Save(&job)

	loaded, loadErr := Load(job.NEOPath, job.CADPath)

	now := time.Now()
	job.CompletedAt = &now
	job.UpdatedAt = now

	if loadErr != nil {
		job.Status = common.JobStatusFailed
		errorsJSON, _ := json.Marshal([]common.RecordValidationResult{common.ResultFromError(loadErr)})
		job.Errors = string(errorsJSON)
		log.Warn("import failed", zap.Error(loadErr))
	} else {
		job.Status = common.JobStatusCompleted
		job.NEOCount = len(loaded.NEOs())
		job.ApproachCount = len(loaded.Approaches())
		if !h.Catalog.Publish(loaded, job.CreatedAt) {
			log.Info("import superseded by a newer dataset; not published")
		}
	}

	db.Save(&job)
}

// allowedPath reports whether path lies under a configured feed directory or UploadsDir
func (h *Handler) allowedPath(path string) bool {
	target, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range []string{filepath.Dir(h.NEOPath), filepath.Dir(h.CADPath), h.UploadsDir} {
		if dir == "" {
			continue
		}
		root, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, target)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (h *Handler) uploadPath(ext string) string {
	fileName := fmt.Sprintf("%s_%s%s", time.Now().Format("20060102_150405"), uuid.New().String()[:8], ext)
	return filepath.Join(h.UploadsDir, fileName)
}

// saveUpload stores an uploaded feed under UploadsDir
func (h *Handler) saveUpload(header *multipart.FileHeader, ext string) (string, error) {
	if err := os.MkdirAll(h.UploadsDir, 0750); err != nil {
		return "", err
	}
	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	path := h.uploadPath(ext)
	out, err := os.Create(path) //nolint:gosec // generated path under UploadsDir
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return "", err
	}
	return path, out.Close()
}

// downloadFile downloads a file from URL
func downloadFile(url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	resp, err := http.Get(url) //nolint:gosec,noctx // URL supplied by an authenticated caller
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := os.Create(path) //nolint:gosec // generated path under UploadsDir
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err = io.Copy(out, resp.Body); err != nil {
		return err
	}
	return out.Close()
}
