package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/image2doc/image2doc/internal/config"
	"github.com/image2doc/image2doc/internal/coordinator"
	"github.com/image2doc/image2doc/internal/event"
	"github.com/image2doc/image2doc/internal/model"
	"github.com/image2doc/image2doc/internal/notify"
	"github.com/image2doc/image2doc/internal/ocr"
	"github.com/image2doc/image2doc/internal/prefs"
	"github.com/image2doc/image2doc/internal/signing"
	"github.com/image2doc/image2doc/internal/storage"
)

// fakeBackend imitates the OCR service.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/languages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]string{"languages": {"eng", "osd", "spa"}})
	})
	mux.HandleFunc("/api/convert", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		json.NewEncoder(w).Encode(map[string]any{
			"content":    base64.StdEncoding.EncodeToString([]byte("the document")),
			"mimeType":   "application/pdf",
			"filename":   "scan.pdf",
			"textLength": 12,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	server *httptest.Server
	center *notify.Center
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := fakeBackend(t)

	cfg := &config.Config{
		Address:         ":0",
		Backend:         backend.URL,
		RequestTimeout:  10 * time.Second,
		MaxFileSize:     1 << 20,
		AllowedTypes:    []string{"image/png", "image/jpeg"},
		MaxNameLen:      100,
		DefaultFormat:   "docx",
		DefaultLanguage: "eng",
		QueuePacing:     0,
		SigningSecret:   []byte("test-secret"),
		SignedURLTTL:    5 * time.Minute,
		PrefsPath:       filepath.Join(t.TempDir(), "prefs.json"),
	}

	bus := event.NewBus()
	client := ocr.NewClient(cfg.Backend, backend.Client(), zerolog.Nop())
	coord := coordinator.New(coordinator.Options{
		MaxFileSize:     cfg.MaxFileSize,
		AllowedTypes:    cfg.AllowedTypes,
		MaxNameLen:      cfg.MaxNameLen,
		DefaultFormat:   cfg.DefaultFormat,
		DefaultLanguage: cfg.DefaultLanguage,
		QueuePacing:     cfg.QueuePacing,
	}, storage.NewMemoryStore(), storage.NewMemoryBlob(), bus, client, zerolog.Nop())
	t.Cleanup(coord.Close)

	center := notify.NewCenter(nil, zerolog.Nop())
	center.Bind(bus)

	prefsStore, err := prefs.Open(cfg.PrefsPath)
	require.NoError(t, err)

	srv := New(cfg, coord, client, ocr.NewLanguageSource(client, nil, 0),
		center, prefsStore, signing.NewSigner(cfg.SigningSecret), nil, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &fixture{server: ts, center: center}
}

func (f *fixture) uploadFile(t *testing.T, name string) map[string]any {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="image"; filename=%q`, name)},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("fake image bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.server.URL+"/api/files", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeJSON(t, resp.Body)
}

func decodeJSON(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&out))
	return out
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if resp.Header.Get("Content-Type") == "application/json" {
		return resp, decodeJSON(t, resp.Body)
	}
	return resp, nil
}

func (f *fixture) do(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, body)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) waitForStatus(t *testing.T, id string, status model.FileStatus) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, file := f.get(t, "/api/files/"+id)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		if file["status"] == string(status) {
			return file
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("file %s never reached %s", id, status)
	return nil
}

func TestHealthAndLanguages(t *testing.T) {
	f := newFixture(t)

	resp, body := f.get(t, "/api/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "up", body["backend"])

	resp, body = f.get(t, "/api/languages")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"eng", "spa"}, body["languages"])
	assert.Nil(t, body["degraded"])
}

func TestUploadConvertDownloadFlow(t *testing.T) {
	f := newFixture(t)

	file := f.uploadFile(t, "scan.png")
	id := file["id"].(string)
	assert.Equal(t, "uploaded", file["status"])

	resp := f.do(t, http.MethodPost, "/api/files/"+id+"/convert", map[string]string{"format": "pdf", "language": "eng"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	done := f.waitForStatus(t, id, model.StatusConverted)
	assert.Equal(t, "scan.pdf", done["downloadName"])

	// A download without a signature is rejected.
	resp, _ = f.get(t, "/api/files/"+id+"/download")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := f.get(t, "/api/files/"+id+"/download-url")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	url := body["url"].(string)

	dl, err := http.Get(f.server.URL + url)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	content, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "the document", string(content))
	assert.Contains(t, dl.Header.Get("Content-Disposition"), "scan.pdf")

	// A finished conversion shows up as a success notification.
	resp, body = f.get(t, "/api/notifications")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notifications := body["notifications"].([]any)
	require.NotEmpty(t, notifications)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	f := newFixture(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="image"; filename="notes.txt"`},
		"Content-Type":        {"text/plain"},
	})
	require.NoError(t, err)
	part.Write([]byte("hello"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.server.URL+"/api/files", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFileLifecycleEndpoints(t *testing.T) {
	f := newFixture(t)
	file := f.uploadFile(t, "a.png")
	id := file["id"].(string)

	resp, body := f.get(t, "/api/files")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["files"].([]any), 1)

	resp, body = f.get(t, "/api/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	resp = f.do(t, http.MethodPost, "/api/files/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeJSON(t, resp.Body)["cancelled"].(bool))

	resp = f.do(t, http.MethodDelete, "/api/files/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.get(t, "/api/files/"+id)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.uploadFile(t, "b.png")
	resp = f.do(t, http.MethodDelete, "/api/files", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decodeJSON(t, resp.Body)["removed"])
}

func TestConvertMissingFile(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/files/nope/convert", map[string]string{"format": "pdf"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPreferencesEndpoints(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/preferences/theme", map[string]string{"theme": "dark"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/preferences/theme", map[string]string{"theme": "neon"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/preferences/searches", map[string]string{"term": "invoices"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.get(t, "/api/preferences")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "dark", body["theme"])
	assert.Equal(t, []any{"invoices"}, body["searchHistory"])

	resp = f.do(t, http.MethodDelete, "/api/preferences/searches", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestNotificationEndpoints(t *testing.T) {
	f := newFixture(t)
	id := f.center.Error("Service unavailable", "backend offline", notify.Persistent())

	resp, body := f.get(t, "/api/notifications")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["notifications"].([]any), 1)

	resp = f.do(t, http.MethodDelete, "/api/notifications/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, f.center.Active())

	f.center.Info("note", "one", notify.Persistent())
	f.center.Info("note", "two", notify.Persistent())
	resp = f.do(t, http.MethodDelete, "/api/notifications", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, f.center.Active())
}
