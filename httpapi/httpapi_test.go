package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodermann/offlinecloud/storage"
)

func newTestAPI(t *testing.T) (*API, *storage.Storage) {
	t.Helper()
	s, err := storage.New(t.TempDir(), nil)
	require.NoError(t, err)
	return New(s, nil), s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestPing(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Router(), http.MethodGet, "/api/ping", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "pong", resp["message"])
}

func TestFileNewAndList(t *testing.T) {
	api, _ := newTestAPI(t)
	router := api.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/file/new", map[string]string{"path": "/a.txt"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/dir/list?path=/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Result []map[string]string `json:"result"`
	}
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Result, 1)
	assert.Equal(t, "/a.txt", resp.Result[0]["path"])
	assert.Equal(t, "f", resp.Result[0]["type"])
}

func TestFileNewMissingJSONKey(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Router(), http.MethodPost, "/api/file/new", map[string]string{"nope": "x"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Contains(t, resp["error"], "path")
}

func TestDirListMissingQueryParameter(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Router(), http.MethodGet, "/api/dir/list", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Contains(t, resp["error"], "path")
}

func TestFileNewAlreadyExists(t *testing.T) {
	api, _ := newTestAPI(t)
	router := api.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/file/new", map[string]string{"path": "/a.txt"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/file/new", map[string]string{"path": "/a.txt"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Contains(t, resp["error"], "already exists")
}

func TestFileUploadAndDownload(t *testing.T) {
	api, _ := newTestAPI(t)
	router := api.Router()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	pathField, err := mw.CreateFormField("path")
	require.NoError(t, err)
	_, err = pathField.Write([]byte("/uploaded.txt"))
	require.NoError(t, err)

	dataField, err := mw.CreateFormFile("data", "uploaded.txt")
	require.NoError(t, err)
	_, err = dataField.Write([]byte("uploaded content"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/file/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/file/download?path=/uploaded.txt", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "uploaded content", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
}

func TestDirCopyAndMove(t *testing.T) {
	api, _ := newTestAPI(t)
	router := api.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/dir/new", map[string]string{"path": "/src"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/dir/copy", map[string]string{"src": "/src", "dest": "/dst"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/dir/move", map[string]string{"src": "/dst", "dest": "/moved"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/dir/list?path=/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Result []map[string]string `json:"result"`
	}
	decodeJSON(t, rec, &resp)

	paths := make([]string, 0, len(resp.Result))
	for _, e := range resp.Result {
		paths = append(paths, e["path"])
	}
	assert.Contains(t, paths, "/src")
	assert.Contains(t, paths, "/moved")
}

func TestDirDownloadProducesZip(t *testing.T) {
	api, _ := newTestAPI(t)
	router := api.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/dir/new", map[string]string{"path": "/d"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/api/file/new", map[string]string{"path": "/d/f.txt"})
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/dir/download?path=/d", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "d.zip")
}

func TestSameSrcDest(t *testing.T) {
	api, _ := newTestAPI(t)
	router := api.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/file/new", map[string]string{"path": "/a.txt"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/file/copy", map[string]string{"src": "/a.txt", "dest": "/a.txt"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Contains(t, resp["error"], "are the same")
}

func TestDataStaticMount(t *testing.T) {
	api, _ := newTestAPI(t)
	router := api.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/file/new", map[string]string{"path": "/static.txt"})
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/data/static.txt", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestDangerousPathRejected(t *testing.T) {
	api, _ := newTestAPI(t)
	router := api.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/file/new", map[string]string{"path": "/../escape.txt"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Contains(t, resp["error"], "dangerous")
}
