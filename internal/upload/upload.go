// Package upload sends files to the backend media library and keeps the
// resulting ids tied to the record mutation that references them.
package upload

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/processor"
)

const cleanupTimeout = 30 * time.Second

// Uploader is the part of the backend the helper needs
type Uploader interface {
	Upload(ctx context.Context, files []domain.FileUpload) ([]domain.UploadedFile, error)
	DeleteUpload(ctx context.Context, id int64) error
}

// Options contains upload limits
type Options struct {
	MaxFiles       int
	MaxFileBytes   int64
	CleanupOrphans bool
}

// Helper uploads files and links them to record mutations
type Helper struct {
	backend   Uploader
	processor domain.Processor
	opts      Options
	logger    *zap.Logger
}

// NewHelper creates an upload helper. proc is only needed by UploadEach.
func NewHelper(backend Uploader, proc domain.Processor, opts Options, logger *zap.Logger) *Helper {
	return &Helper{
		backend:   backend,
		processor: proc,
		opts:      opts,
		logger:    logger,
	}
}

// Validate checks files against the configured limits
func (h *Helper) Validate(files []domain.FileUpload) error {
	if h.opts.MaxFiles > 0 && len(files) > h.opts.MaxFiles {
		return domain.NewValidationError("files", fmt.Sprintf("at most %d files per upload", h.opts.MaxFiles))
	}
	for _, f := range files {
		if f.Name == "" {
			return domain.NewValidationError("files", "file name is required")
		}
		if len(f.Data) == 0 {
			return domain.NewValidationError("files", fmt.Sprintf("%s is empty", f.Name))
		}
		if h.opts.MaxFileBytes > 0 && int64(len(f.Data)) > h.opts.MaxFileBytes {
			return domain.NewValidationError("files", fmt.Sprintf("%s exceeds %d bytes", f.Name, h.opts.MaxFileBytes))
		}
	}
	return nil
}

// Upload sends all files in one request. Descriptors come back in
// submission order; any failure fails the whole batch. No files means no
// request and an empty result.
func (h *Helper) Upload(ctx context.Context, files []domain.FileUpload) ([]domain.UploadedFile, error) {
	if len(files) == 0 {
		return []domain.UploadedFile{}, nil
	}
	if err := h.Validate(files); err != nil {
		return nil, err
	}

	uploaded, err := h.backend.Upload(ctx, files)
	if err != nil {
		// the server may have stored part of the batch
		h.Cleanup(ctx, domain.UploadIDs(uploaded))
		return nil, fmt.Errorf("upload %d files: %w", len(files), err)
	}
	h.logger.Debug("files uploaded",
		zap.Int("count", len(uploaded)),
		zap.Int64s("ids", domain.UploadIDs(uploaded)),
	)
	return uploaded, nil
}

// UploadEach sends every file as its own request through the worker pool.
// Results keep input order. If any file fails the ones that made it are
// deleted again and the first error is returned.
func (h *Helper) UploadEach(ctx context.Context, files []domain.FileUpload) ([]domain.UploadedFile, error) {
	if len(files) == 0 {
		return []domain.UploadedFile{}, nil
	}
	if err := h.Validate(files); err != nil {
		return nil, err
	}
	if h.processor == nil {
		return nil, fmt.Errorf("upload each: no processor configured")
	}

	// ids the server stored so far; once the batch is abandoned, late
	// uploads delete themselves
	var (
		mu        sync.Mutex
		stored    []int64
		abandoned bool
	)
	keep := func(out []domain.UploadedFile) bool {
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			return false
		}
		stored = append(stored, domain.UploadIDs(out)...)
		return true
	}
	abandon := func() []int64 {
		mu.Lock()
		defer mu.Unlock()
		abandoned = true
		return stored
	}

	tasks := make([]domain.Task, len(files))
	for i, f := range files {
		f := f
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			out, err := h.backend.Upload(ctx, []domain.FileUpload{f})
			if !keep(out) {
				h.Cleanup(ctx, domain.UploadIDs(out))
				return nil, fmt.Errorf("upload %s: batch abandoned", f.Name)
			}
			if err != nil {
				return nil, fmt.Errorf("upload %s: %w", f.Name, err)
			}
			if len(out) != 1 {
				return nil, fmt.Errorf("%w: upload %s returned %d files", domain.ErrShapeMismatch, f.Name, len(out))
			}
			return out[0], nil
		}
	}

	results, err := h.processor.Process(ctx, tasks)
	if err != nil {
		h.Cleanup(ctx, abandon())
		return nil, fmt.Errorf("upload each: %w", err)
	}
	if err := processor.FirstError(results); err != nil {
		h.Cleanup(ctx, abandon())
		return nil, err
	}

	uploaded := make([]domain.UploadedFile, len(results))
	for i, r := range results {
		uploaded[i] = r.Value.(domain.UploadedFile)
	}
	return uploaded, nil
}

// WithUploads uploads files, then runs mutate with their ids in upload
// order. When mutate fails and orphan cleanup is on, the uploaded files are
// deleted again.
func (h *Helper) WithUploads(ctx context.Context, files []domain.FileUpload, mutate func(ids []int64) error) ([]domain.UploadedFile, error) {
	uploaded, err := h.Upload(ctx, files)
	if err != nil {
		return nil, err
	}

	if err := mutate(domain.UploadIDs(uploaded)); err != nil {
		if h.opts.CleanupOrphans {
			h.Cleanup(ctx, domain.UploadIDs(uploaded))
		} else if len(uploaded) > 0 {
			h.logger.Warn("mutation failed, uploaded files left in media library",
				zap.Int64s("ids", domain.UploadIDs(uploaded)),
				zap.Error(err),
			)
		}
		return uploaded, err
	}
	return uploaded, nil
}

// Cleanup deletes uploaded files, best effort. Failures are logged only.
func (h *Helper) Cleanup(ctx context.Context, ids []int64) {
	if len(ids) == 0 {
		return
	}
	// Runs even when the caller's request has already been cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, id := range ids {
		if err := h.backend.DeleteUpload(ctx, id); err != nil {
			h.logger.Warn("failed to delete orphaned upload", zap.Int64("id", id), zap.Error(err))
			continue
		}
		h.logger.Debug("orphaned upload deleted", zap.Int64("id", id))
	}
}

// FilesFromForm reads multipart file headers into uploads, keeping order.
// A missing Content-Type is sniffed from the first bytes.
func FilesFromForm(headers []*multipart.FileHeader) ([]domain.FileUpload, error) {
	files := make([]domain.FileUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}

		ct := fh.Header.Get("Content-Type")
		if ct == "" || ct == "application/octet-stream" {
			ct = http.DetectContentType(data)
		}
		files = append(files, domain.FileUpload{Name: fh.Filename, ContentType: ct, Data: data})
	}
	return files, nil
}
