// Package httpapi is the HTTP transport for the filesystem service: a
// chi router translating the endpoints in the external interface table
// onto storage.Storage, plus the single middleware that turns every
// storage/apierr failure into a uniform 400 JSON response.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nodermann/offlinecloud/apierr"
	"github.com/nodermann/offlinecloud/obslog"
	"github.com/nodermann/offlinecloud/storage"
)

// API holds the dependencies every handler needs.
type API struct {
	storage *storage.Storage
	log     obslog.Log
}

// New builds an API bound to s, logging through log.
func New(s *storage.Storage, log obslog.Log) *API {
	if log == nil {
		log = obslog.NoLog{}
	}
	return &API{storage: s, log: log}
}

// Router builds the complete chi router: the JSON API under /api, and
// the data root mounted read-only under /data/.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Get("/api/ping", a.wrap(a.ping))

	r.Get("/api/dir/list", a.wrap(a.dirList))
	r.Get("/api/dir/download", a.wrap(a.dirDownload))
	r.Post("/api/dir/new", a.wrap(a.dirNew))
	r.Post("/api/dir/copy", a.wrap(a.dirCopy))
	r.Post("/api/dir/move", a.wrap(a.dirMove))
	r.Post("/api/dir/remove", a.wrap(a.dirRemove))

	r.Get("/api/file/view", a.wrap(a.fileView))
	r.Get("/api/file/download", a.wrap(a.fileDownload))
	r.Post("/api/file/new", a.wrap(a.fileNew))
	r.Post("/api/file/upload", a.wrap(a.fileUpload))
	r.Post("/api/file/copy", a.wrap(a.fileCopy))
	r.Post("/api/file/move", a.wrap(a.fileMove))
	r.Post("/api/file/remove", a.wrap(a.fileRemove))

	fs := http.FileServer(http.Dir(a.storage.Root()))
	r.Handle("/data/*", http.StripPrefix("/data/", fs))

	return r
}

// apiHandler is a handler that may fail with an *apierr.Error (or any
// other error, which is folded into apierr.Internal by wrap).
type apiHandler func(w http.ResponseWriter, r *http.Request) error

func (a *API) wrap(h apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			a.writeError(w, err)
		}
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	aerr, ok := err.(*apierr.Error)
	if !ok {
		aerr = apierr.Internal(err)
	}
	a.log.Log(obslog.TopicError, "request failed", obslog.M{
		"kind":  string(aerr.Kind),
		"error": aerr.Error(),
	})
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": aerr.Error()})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.log.Log(obslog.TopicRequest, "request", obslog.M{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeResult(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, map[string]any{"result": v})
}

func (a *API) ping(w http.ResponseWriter, r *http.Request) error {
	writeMessage(w, http.StatusOK, "pong")
	return nil
}
