package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
	srvdownload "github.com/jgivc/mediafetch/internal/service/download"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
)

const maxBodySize = 1 << 16

type DownloadService interface {
	Submit(ctx context.Context, req srvdownload.SubmitRequest) (*entity.Job, error)
	Pause(id int64) error
	Resume(ctx context.Context, id int64) error
	Cancel(ctx context.Context, id int64) (string, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*entity.Job, error)
	Artifact(ctx context.Context, id int64) (afero.File, error)
}

type MetadataService interface {
	Resolve(ctx context.Context, url string) (*entity.MetadataResult, error)
}

type CounterService interface {
	GetCounters(ctx context.Context) (map[string]int, error)
}

type PageService interface {
	GetPage(ctx context.Context) (string, error)
}

type statusResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, &errorResponse{Error: msg})
}

// writeServiceError maps service errors to a status code. Unknown errors are reported
// as fallback without leaking details.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrInvalidState),
		errors.Is(err, common.ErrNotReady):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrNotFound),
		errors.Is(err, common.ErrNotActive),
		errors.Is(err, common.ErrArtifactNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "bad download id")

		return 0, false
	}

	return id, true
}

func NewSubmitHandler(srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "SubmitHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req srvdownload.SubmitRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
			log.Debug("Bad request body", slog.Any("error", err))
			writeError(w, http.StatusBadRequest, "bad request body")

			return
		}

		job, err := srv.Submit(r.Context(), req)
		if err != nil {
			writeServiceError(w, err, "cannot create download")

			return
		}

		writeJSON(w, http.StatusOK, &statusResponse{ID: job.ID, Status: string(job.Status)})
	}
}

func NewPauseHandler(srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "PauseHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := srv.Pause(id); err != nil {
			writeServiceError(w, err, "cannot pause download")

			return
		}

		writeJSON(w, http.StatusOK, &statusResponse{ID: id, Status: "pausing"})
	}
}

func NewResumeHandler(srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ResumeHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := srv.Resume(r.Context(), id); err != nil {
			writeServiceError(w, err, "cannot resume download")

			return
		}

		writeJSON(w, http.StatusOK, &statusResponse{ID: id, Status: "resuming"})
	}
}

func NewCancelHandler(srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "CancelHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		ack, err := srv.Cancel(r.Context(), id)
		if err != nil {
			writeServiceError(w, err, "cannot cancel download")

			return
		}

		writeJSON(w, http.StatusOK, &statusResponse{ID: id, Status: ack})
	}
}

func NewDeleteHandler(srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DeleteHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := srv.Delete(r.Context(), id); err != nil {
			writeServiceError(w, err, "cannot delete download")

			return
		}

		writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
	}
}

func NewListHandler(srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ListHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := srv.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "cannot list downloads")

			return
		}

		writeJSON(w, http.StatusOK, jobs)
	}
}

func NewFileHandler(srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "FileHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		f, err := srv.Artifact(r.Context(), id)
		if err != nil {
			writeServiceError(w, err, "cannot get file")

			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			log.Error("Cannot stat file", slog.Int64("id", id), slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "cannot get file")

			return
		}

		name := filepath.Base(f.Name())
		log.Info("Serve file", slog.Int64("id", id), slog.String("name", name), slog.Int64("size", info.Size()))

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

func NewMetaHandler(srv MetadataService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "MetaHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			writeError(w, http.StatusBadRequest, "url is required")

			return
		}

		res, err := srv.Resolve(r.Context(), url)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Warn("Cannot resolve metadata", slog.String("url", url), slog.Any("error", err))
			}
			writeServiceError(w, err, "cannot resolve metadata")

			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func NewCounterHandler(srv CounterService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "CounterHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		counters, err := srv.GetCounters(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "cannot get counters")

			return
		}

		writeJSON(w, http.StatusOK, counters)
	}
}

func NewPageHandler(srv PageService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "PageHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		content, err := srv.GetPage(r.Context())
		if err != nil {
			http.Error(w, "Cannot get page", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(content))
	}
}

// NewRateLimitMiddleware rejects requests above the limiter's rate with 429.
func NewRateLimitMiddleware(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "too many requests")

			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewCORSMiddleware allows any origin and answers preflight requests directly.
func NewCORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "*")
		h.Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(w, r)
	})
}
