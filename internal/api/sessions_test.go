package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/courseforge/backend/internal/content"
	"github.com/courseforge/backend/internal/domain"
	"github.com/courseforge/backend/internal/generation"
	"github.com/courseforge/backend/internal/progress"
	"github.com/courseforge/backend/internal/session"
	"github.com/courseforge/backend/internal/store"
	"github.com/go-chi/chi/v5"
)

type testEnv struct {
	router    *chi.Mux
	repo      store.Repository
	outputDir string
}

// newTestEnv wires the full API surface over a real store, the local echo
// generator and fallback ingestion/planning.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})

	outputDir := t.TempDir()
	uploadDir := t.TempDir()
	tracker := session.NewTracker()
	mgr := session.NewManager(repo, outputDir, uploadDir, tracker)
	plog := progress.NewLog(repo)
	ctrl := generation.NewController(context.Background(), repo, plog,
		content.NewEchoGenerator(), content.NewFileExporter(), outputDir)

	base := NewHandler(repo)
	sessionHandler := NewSessionHandler(base, mgr, nil, nil, uploadDir, outputDir, 3)
	generationHandler := NewGenerationHandler(base, ctrl, plog, tracker)

	r := chi.NewRouter()
	sessionHandler.RegisterRoutes(r)
	generationHandler.RegisterRoutes(r)

	return &testEnv{router: r, repo: repo, outputDir: outputDir}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return got
}

func TestCreateAndGetSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/sessions", nil, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decodeBody(t, w)
	id, _ := created["session_id"].(string)
	if id == "" {
		t.Fatal("Expected a session_id in the response")
	}

	w = env.do(t, http.MethodGet, "/api/sessions/"+id, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if got["status"] != domain.StatusInitialized {
		t.Errorf("Expected status %q, got %v", domain.StatusInitialized, got["status"])
	}
}

func TestGetSession_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/sessions/nope", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func uploadRequest(t *testing.T, sessionID, filename, contents string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if sessionID != "" {
		if err := mw.WriteField("session_id", sessionID); err != nil {
			t.Fatalf("Failed to write form field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := fw.Write([]byte(contents)); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUpload_FallbackIngestion(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := uploadRequest(t, "", "spec.pdf", "module specification bytes")
	w := env.do(t, http.MethodPost, "/api/upload", body, contentType)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	got := decodeBody(t, w)
	id, _ := got["session_id"].(string)
	if id == "" {
		t.Fatal("Expected upload to allocate a session")
	}
	if got["module_data"] == nil {
		t.Fatal("Expected fallback module data in the response")
	}

	stored, err := env.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != "uploaded" {
		t.Errorf("Expected status uploaded, got %q", stored.Status)
	}
	if stored.ModuleData == nil || !strings.Contains(stored.ModuleData.Title, "spec.pdf") {
		t.Errorf("Expected fallback module data derived from the filename, got %+v", stored.ModuleData)
	}
}

func TestUpload_UnknownSession(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := uploadRequest(t, "nope", "spec.pdf", "bytes")
	w := env.do(t, http.MethodPost, "/api/upload", body, contentType)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestUploadResource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.repo.Create(ctx, domain.NewSession("abc")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("week", "3"); err != nil {
		t.Fatalf("Failed to write form field: %v", err)
	}
	fw, err := mw.CreateFormFile("file", "slides.pdf")
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := fw.Write([]byte("slide bytes")); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/sessions/abc/resources", buf.Bytes(), mw.FormDataContentType())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	stored, err := env.repo.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resources := stored.ResourceFiles["3"]
	if len(resources) != 1 {
		t.Fatalf("Expected 1 resource for week 3, got %d", len(resources))
	}
	if resources[0].OriginalName != "slides.pdf" {
		t.Errorf("Expected original name slides.pdf, got %q", resources[0].OriginalName)
	}
	if resources[0].Type != "pdf" {
		t.Errorf("Expected type pdf, got %q", resources[0].Type)
	}
}

func TestUploadResource_InvalidWeek(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.repo.Create(context.Background(), domain.NewSession("abc")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	body, contentType := uploadRequest(t, "", "slides.pdf", "bytes")
	w := env.do(t, http.MethodPost, "/api/sessions/abc/resources", body, contentType)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without a week field, got %d", w.Code)
	}
}

func TestGeneratePlan_Fallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s := domain.NewSession("abc")
	s.ModuleData = &domain.ModuleData{Title: "Networks"}
	if _, err := env.repo.Create(ctx, s); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/sessions/abc/plan", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	stored, err := env.repo.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != "planned" {
		t.Errorf("Expected status planned, got %q", stored.Status)
	}
	if len(stored.WeekPlans) != 3 {
		t.Errorf("Expected 3 fallback week plans, got %d", len(stored.WeekPlans))
	}
}

func TestGeneratePlan_RequiresModuleData(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.repo.Create(context.Background(), domain.NewSession("bare")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/sessions/bare/plan", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestApprovePlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s := domain.NewSession("abc")
	s.ModuleData = &domain.ModuleData{Title: "Networks"}
	s.WeekPlans = content.FallbackWeekPlans(3)
	if _, err := env.repo.Create(ctx, s); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	edited := []domain.WeekPlan{
		{WeekNumber: 1, Title: "Sockets and Framing"},
		{WeekNumber: 2, Title: "Congestion Control"},
	}
	body, err := json.Marshal(map[string]interface{}{"week_plans": edited})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	w := env.do(t, http.MethodPut, "/api/sessions/abc/plan", body, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	stored, err := env.repo.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != "approved" {
		t.Errorf("Expected status approved, got %q", stored.Status)
	}
	// The edited plans replace the generated ones wholesale.
	if len(stored.WeekPlans) != 2 {
		t.Fatalf("Expected 2 week plans, got %d", len(stored.WeekPlans))
	}
	if stored.WeekPlans[0].Title != "Sockets and Framing" {
		t.Errorf("Expected edited title to survive, got %q", stored.WeekPlans[0].Title)
	}
}

func TestApprovePlan_Validation(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.repo.Create(context.Background(), domain.NewSession("abc")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	w := env.do(t, http.MethodPut, "/api/sessions/abc/plan", []byte(`{"week_plans":[]}`), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty plans, got %d", w.Code)
	}

	w = env.do(t, http.MethodPut, "/api/sessions/nope/plan",
		[]byte(`{"week_plans":[{"week_number":1,"title":"Week 1"}]}`), "application/json")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown session, got %d", w.Code)
	}
}

// writeArtifact places a fake generated file under the session's output
// directory.
func (e *testEnv) writeArtifact(t *testing.T, sessionID, relPath, contents string) {
	t.Helper()
	path := filepath.Join(e.outputDir, sessionID, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create artifact dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}
}

func TestPreviewFile(t *testing.T) {
	env := newTestEnv(t)
	env.writeArtifact(t, "abc", "01_Lecture_Notes/Week_01_Intro.md", "# Week 1\n\nIntro notes.")

	w := env.do(t, http.MethodGet, "/api/sessions/abc/preview?file=01_Lecture_Notes/Week_01_Intro.md", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decodeBody(t, w)
	if got["type"] != "text" {
		t.Errorf("Expected type text, got %v", got["type"])
	}
	if content, _ := got["content"].(string); !strings.Contains(content, "Intro notes.") {
		t.Errorf("Expected file content in preview, got %q", content)
	}

	w = env.do(t, http.MethodGet, "/api/sessions/abc/preview?file=01_Lecture_Notes/missing.md", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for a missing file, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/sessions/abc/preview", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without a file parameter, got %d", w.Code)
	}
}

func TestDownloadFile(t *testing.T) {
	env := newTestEnv(t)
	env.writeArtifact(t, "abc", "02_Seminar_Materials/Week_02_Workshop.md", "workshop body")

	w := env.do(t, http.MethodGet, "/api/sessions/abc/file?file=02_Seminar_Materials/Week_02_Workshop.md", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "workshop body" {
		t.Errorf("Expected file contents, got %q", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "Week_02_Workshop.md") {
		t.Errorf("Expected attachment disposition with the file name, got %q", cd)
	}

	w = env.do(t, http.MethodGet, "/api/sessions/abc/file?file=nope.md", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for a missing file, got %d", w.Code)
	}
}

func TestFileAccess_RejectsTraversal(t *testing.T) {
	env := newTestEnv(t)
	// A file outside the session directory must stay unreachable.
	env.writeArtifact(t, "other", "secret.md", "not yours")

	for _, name := range []string{"../other/secret.md", "../../etc/passwd"} {
		w := env.do(t, http.MethodGet, "/api/sessions/abc/preview?file="+name, nil, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for preview of %q, got %d", name, w.Code)
		}

		w = env.do(t, http.MethodGet, "/api/sessions/abc/file?file="+name, nil, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for download of %q, got %d", name, w.Code)
		}
	}
}

func TestGenerationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s := domain.NewSession("abc")
	s.ModuleData = &domain.ModuleData{Title: "Compilers"}
	s.WeekPlans = content.FallbackWeekPlans(2)
	if _, err := env.repo.Create(ctx, s); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	startBody, err := json.Marshal(map[string]interface{}{
		"session_id": "abc",
		"materials":  []string{domain.MaterialLectureNotes},
	})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	w := env.do(t, http.MethodPost, "/api/generation/start", startBody, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	started := decodeBody(t, w)
	if started["status"] != "started" {
		t.Errorf("Expected status started, got %v", started["status"])
	}

	// The echo generator finishes quickly; poll the status endpoint.
	deadline := time.Now().Add(5 * time.Second)
	for {
		w = env.do(t, http.MethodGet, "/api/generation/abc/status", nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		status := decodeBody(t, w)
		if status["status"] == domain.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for completion, last status %v", status["status"])
		}
		time.Sleep(20 * time.Millisecond)
	}

	// Generated files are visible through the materials listing.
	w = env.do(t, http.MethodGet, "/api/sessions/abc/materials", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var materials []domain.MaterialRecord
	if err := json.NewDecoder(w.Body).Decode(&materials); err != nil {
		t.Fatalf("Failed to decode materials: %v", err)
	}
	// 2 lecture note files per week over 2 weeks.
	if len(materials) != 4 {
		t.Errorf("Expected 4 materials, got %d", len(materials))
	}

	// And bundled by the download endpoint.
	w = env.do(t, http.MethodGet, "/api/sessions/abc/download", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from download, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Expected application/zip, got %q", ct)
	}
	if w.Body.Len() == 0 {
		t.Error("Expected a non-empty archive body")
	}
}

func TestStartGeneration_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/generation/start", []byte("{"), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/generation/start", []byte(`{"materials":["lecture_notes"]}`), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without session_id, got %d", w.Code)
	}
}

func TestStopGeneration_Conflict(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.repo.Create(context.Background(), domain.NewSession("idle")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/generation/idle/stop", nil, "")
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestDownload_NoMaterials(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.repo.Create(context.Background(), domain.NewSession("empty")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/sessions/empty/download", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.repo.Create(ctx, domain.NewSession("gone")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	w := env.do(t, http.MethodDelete, "/api/sessions/gone", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w = env.do(t, http.MethodDelete, "/api/sessions/gone", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", w.Code)
	}
}

func TestUsageStatistics(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.repo.Create(context.Background(), domain.NewSession("one")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/usage-statistics", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if got["total_sessions"] != float64(1) {
		t.Errorf("Expected 1 total session, got %v", got["total_sessions"])
	}
}
