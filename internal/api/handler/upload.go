package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	mw "github.com/synthgen-io/synthgen/internal/api/middleware"
	"github.com/synthgen-io/synthgen/internal/api/response"
	"github.com/synthgen-io/synthgen/internal/config"
	"github.com/synthgen-io/synthgen/pkg/models"
)

var allowedExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
}

// JobCreator defines the interface the upload handler depends on.
type JobCreator interface {
	CreateFromUpload(ctx context.Context, userID uuid.UUID, fileName, filePath string) (*models.Job, error)
}

// NewUploadHandler returns an http.HandlerFunc for POST /api/v1/upload. The
// file is written to local disk before the job is created; analysis runs in
// the background and the job is returned immediately as queued.
func NewUploadHandler(svc JobCreator, cfg config.UploadConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxSizeBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
					fmt.Sprintf("File exceeds the %d byte limit", cfg.MaxSizeBytes), nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Expected a multipart form upload", nil)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Missing file field", nil)
			return
		}
		defer file.Close()

		name := sanitizeFileName(header.Filename)
		ext := strings.ToLower(filepath.Ext(name))
		if !allowedExtensions[ext] {
			response.Error(w, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE",
				"Only .csv and .xlsx files are supported", nil)
			return
		}

		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to store uploaded file", nil)
			return
		}

		// Stored name is unique per upload; the original name survives on the job.
		dest := filepath.Join(cfg.Dir, uuid.NewString()+ext)
		out, err := os.Create(dest)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to store uploaded file", nil)
			return
		}
		if _, err := io.Copy(out, file); err != nil {
			out.Close()
			os.Remove(dest)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to store uploaded file", nil)
			return
		}
		if err := out.Close(); err != nil {
			os.Remove(dest)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to store uploaded file", nil)
			return
		}

		job, err := svc.CreateFromUpload(r.Context(), userID, name, dest)
		if err != nil {
			os.Remove(dest)
			serviceError(w, err)
			return
		}

		response.Created(w, job)
	}
}

// sanitizeFileName strips any path components and characters that could leak
// into shell commands or filesystem traversal downstream.
func sanitizeFileName(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
