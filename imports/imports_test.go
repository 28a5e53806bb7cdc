package imports

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo-import-export/common"
	"neo-import-export/index"
)

const neoCSV = `pdes,name,diameter,pha
433,Eros,16.84,N
2101,Adonis,0.6,Y
`

const cadJSON = `{"fields":["des","cd","dist","v_rel"],"data":[
["433","1900-Jan-01 12:11","0.0921","5.42"],
["2101","1936-Feb-07 10:00","0.0149","10.2"],
["433","2012-Jan-31 11:01","0.178","5.9"]]}`

func writeFeeds(t *testing.T, dir string) (string, string) {
	t.Helper()
	neoPath := filepath.Join(dir, "neos.csv")
	cadPath := filepath.Join(dir, "cad.json")
	require.NoError(t, os.WriteFile(neoPath, []byte(neoCSV), 0o600))
	require.NoError(t, os.WriteFile(cadPath, []byte(cadJSON), 0o600))
	return neoPath, cadPath
}

func TestLoad(t *testing.T) {
	neoPath, cadPath := writeFeeds(t, t.TempDir())

	db, err := Load(neoPath, cadPath)
	require.NoError(t, err)
	assert.Len(t, db.NEOs(), 2)
	assert.Len(t, db.Approaches(), 3)
	assert.Len(t, db.GetNEOByDesignation("433").Approaches, 2)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	neoPath, cadPath := writeFeeds(t, dir)

	_, err := Load(filepath.Join(dir, "nope.csv"), cadPath)
	require.Error(t, err)
	assert.True(t, common.IsType(err, common.ErrorTypeIO))
	var e *common.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "neo", e.Details["feed"])

	orphan := filepath.Join(dir, "orphan.json")
	require.NoError(t, os.WriteFile(orphan, []byte(`{"fields":["des","cd","dist","v_rel"],"data":[["99942","2029-Apr-13 21:46","0.000254","7.42"]]}`), 0o600))
	_, err = Load(neoPath, orphan)
	assert.True(t, common.IsType(err, common.ErrorTypeStructural))
}

func setupRouter(t *testing.T) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	db, err := common.Init(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, common.AutoMigrateJobs(db))
	t.Cleanup(func() { common.SetDB(nil) })

	neoPath, cadPath := writeFeeds(t, dir)
	h := &Handler{
		Catalog:    index.NewCatalog(nil),
		UploadsDir: filepath.Join(dir, "uploads"),
		NEOPath:    neoPath,
		CADPath:    cadPath,
	}
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r, h
}

func waitForJob(t *testing.T, r *gin.Engine, jobID string) GetImportResponse {
	t.Helper()
	var resp GetImportResponse
	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+jobID, nil))
		if w.Code != http.StatusOK {
			return false
		}
		resp = GetImportResponse{}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			return false
		}
		return resp.Status == common.JobStatusCompleted || resp.Status == common.JobStatusFailed
	}, 5*time.Second, 20*time.Millisecond)
	return resp
}

func createImport(t *testing.T, r *gin.Engine, key string, req *http.Request) CreateImportResponse {
	t.Helper()
	req.Header.Set("Idempotency-Key", key)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Contains(t, []int{http.StatusAccepted, http.StatusOK}, w.Code, w.Body.String())

	var resp CreateImportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateImport_DefaultFeeds(t *testing.T) {
	r, h := setupRouter(t)

	created := createImport(t, r, "import-1", httptest.NewRequest(http.MethodPost, "/api/v1/imports", nil))
	job := waitForJob(t, r, created.JobID)

	assert.Equal(t, common.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.NEOCount)
	assert.Equal(t, 3, job.ApproachCount)
	require.NotNil(t, h.Catalog.Current())

	again := createImport(t, r, "import-1", httptest.NewRequest(http.MethodPost, "/api/v1/imports", nil))
	assert.Equal(t, created.JobID, again.JobID, "Same idempotency key returns the existing job")
}

func TestCreateImport_MissingKey(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/imports", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateImport_FailedJobReportsRow(t *testing.T) {
	r, h := setupRouter(t)
	bad := filepath.Join(filepath.Dir(h.NEOPath), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("pdes,name,diameter,pha\n433,Eros,huge,N\n"), 0o600))

	body, _ := json.Marshal(CreateImportRequest{NEOPath: bad})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	created := createImport(t, r, "import-bad", req)

	job := waitForJob(t, r, created.JobID)
	assert.Equal(t, common.JobStatusFailed, job.Status)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, 2, job.Errors[0].RowNumber)
	assert.Equal(t, "diameter", job.Errors[0].Errors[0].Field)
	assert.Nil(t, h.Catalog.Current(), "A failed import publishes nothing")
}

func TestCreateImport_RejectsPathsOutsideFeedDirs(t *testing.T) {
	r, h := setupRouter(t)
	outside := filepath.Join(t.TempDir(), "neos.csv")
	require.NoError(t, os.WriteFile(outside, []byte(neoCSV), 0o600))

	for _, body := range []CreateImportRequest{
		{NEOPath: outside},
		{CADPath: "/etc/passwd"},
		{NEOPath: filepath.Join(filepath.Dir(h.NEOPath), "..", "neos.csv")},
	} {
		data, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "outside")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%+v", body)
	}

	var count int64
	require.NoError(t, common.GetDB().Model(&common.ImportJob{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateImport_Multipart(t *testing.T) {
	r, h := setupRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("neo_file", "neos.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("pdes,name,diameter,pha\n433,Eros,16.84,N\n"))
	require.NoError(t, err)
	part, err = mw.CreateFormFile("cad_file", "cad.json")
	require.NoError(t, err)
	_, err = part.Write([]byte(`{"fields":["des","cd","dist","v_rel"],"data":[["433","1900-Jan-01 12:00","0.09","5.4"]]}`))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	created := createImport(t, r, "import-upload", req)

	job := waitForJob(t, r, created.JobID)
	assert.Equal(t, common.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.ApproachCount)
	assert.Equal(t, h.UploadsDir, filepath.Dir(job.NEOPath))
}

func TestGetNEO(t *testing.T) {
	r, h := setupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/neos/433", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	db, err := Load(h.NEOPath, h.CADPath)
	require.NoError(t, err)
	h.Catalog.Swap(db)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/neos/433", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Designation string            `json:"designation"`
		Name        string            `json:"name"`
		Approaches  []ApproachSummary `json:"approaches"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "433", resp.Designation)
	assert.Equal(t, "Eros", resp.Name)
	require.Len(t, resp.Approaches, 2)
	assert.Equal(t, "1900-01-01 12:11", resp.Approaches[0].DatetimeUTC)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/neos/Adonis?by=name", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/neos/1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessImportJob_OlderJobDoesNotOverwriteNewer(t *testing.T) {
	_, h := setupRouter(t)
	smallNEOs := filepath.Join(filepath.Dir(h.NEOPath), "small.csv")
	smallCAD := filepath.Join(filepath.Dir(h.NEOPath), "small.json")
	require.NoError(t, os.WriteFile(smallNEOs, []byte("pdes,name,diameter,pha\n433,Eros,16.84,N\n"), 0o600))
	require.NoError(t, os.WriteFile(smallCAD, []byte(`{"fields":["des","cd","dist","v_rel"],"data":[]}`), 0o600))

	submitted := time.Now().Add(-time.Hour)
	older := common.ImportJob{
		ID: "older", IdempotencyKey: "older", Status: common.JobStatusPending,
		NEOPath: smallNEOs, CADPath: smallCAD, CreatedAt: submitted, UpdatedAt: submitted,
	}
	newer := common.ImportJob{
		ID: "newer", IdempotencyKey: "newer", Status: common.JobStatusPending,
		NEOPath: h.NEOPath, CADPath: h.CADPath, CreatedAt: submitted.Add(time.Minute), UpdatedAt: submitted,
	}
	require.NoError(t, common.GetDB().Create(&older).Error)
	require.NoError(t, common.GetDB().Create(&newer).Error)

	// The newer job finishes first
	h.ProcessImportJob("newer")
	h.ProcessImportJob("older")

	require.NotNil(t, h.Catalog.Current())
	assert.Len(t, h.Catalog.Current().NEOs(), 2)

	var stored common.ImportJob
	require.NoError(t, common.GetDB().First(&stored, "id = ?", "older").Error)
	assert.Equal(t, common.JobStatusCompleted, stored.Status)
}
