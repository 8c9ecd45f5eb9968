package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/processor"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/repositories"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/strapitest"
)

// MockUploader is a mock implementation of Uploader
type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, files []domain.FileUpload) ([]domain.UploadedFile, error) {
	args := m.Called(ctx, files)
	out, _ := args.Get(0).([]domain.UploadedFile)
	return out, args.Error(1)
}

func (m *MockUploader) DeleteUpload(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func png(name string) domain.FileUpload {
	return domain.FileUpload{Name: name, ContentType: "image/png", Data: []byte("\x89PNG" + name)}
}

func newStrapiHelper(t *testing.T, cleanup bool) (*Helper, *repositories.StrapiRepository, *strapitest.Server) {
	t.Helper()
	srv := strapitest.New(t)
	repo := repositories.NewStrapiRepository(repositories.Options{
		BaseURL: srv.URL,
		Prefix:  "/api",
		Token:   strapitest.Token,
		Timeout: 5 * time.Second,
	}, zaptest.NewLogger(t))
	h := NewHelper(repo, nil, Options{MaxFiles: 5, MaxFileBytes: 1024, CleanupOrphans: cleanup}, zaptest.NewLogger(t))
	return h, repo, srv
}

func TestWithUploadsKeepsUploadOrder(t *testing.T) {
	h, repo, srv := newStrapiHelper(t, true)
	ctx := context.Background()

	var created domain.Record
	uploaded, err := h.WithUploads(ctx, []domain.FileUpload{png("front.png"), png("back.png")}, func(ids []int64) error {
		var err error
		created, err = repo.Create(ctx, domain.CollectionProducts, map[string]interface{}{
			"name":   "Whey",
			"price":  2999,
			"images": ids,
		})
		return err
	})
	require.NoError(t, err)
	require.Len(t, uploaded, 2)
	assert.Equal(t, "front.png", uploaded[0].Name)
	assert.Equal(t, "back.png", uploaded[1].Name)

	images, ok := created["images"].([]interface{})
	require.True(t, ok)
	require.Len(t, images, 2)
	assert.Equal(t, float64(uploaded[0].ID), images[0])
	assert.Equal(t, float64(uploaded[1].ID), images[1])
	assert.Len(t, srv.Uploads(), 2)
}

func TestWithUploadsCleansOrphans(t *testing.T) {
	h, repo, srv := newStrapiHelper(t, true)
	ctx := context.Background()
	srv.Fail(http.MethodPost, "/api/products", http.StatusBadRequest, "name must be unique", 1)

	_, err := h.WithUploads(ctx, []domain.FileUpload{png("a.png"), png("b.png")}, func(ids []int64) error {
		_, err := repo.Create(ctx, domain.CollectionProducts, map[string]interface{}{"name": "Dup", "images": ids})
		return err
	})
	require.Error(t, err)
	assert.Equal(t, "name must be unique", domain.UserMessage(err, "failed to save product"))
	assert.Empty(t, srv.Uploads())
	assert.Equal(t, 2, srv.Count(http.MethodDelete, "/api/upload/files/"))
}

func TestWithUploadsLeavesOrphansWhenDisabled(t *testing.T) {
	h, _, srv := newStrapiHelper(t, false)
	boom := errors.New("create failed")

	_, err := h.WithUploads(context.Background(), []domain.FileUpload{png("a.png")}, func(ids []int64) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, srv.Uploads(), 1)
	assert.Equal(t, 0, srv.Count(http.MethodDelete, "/api/upload"))
}

func TestUploadLimits(t *testing.T) {
	h, _, srv := newStrapiHelper(t, true)
	ctx := context.Background()

	tooMany := make([]domain.FileUpload, 6)
	for i := range tooMany {
		tooMany[i] = png("f.png")
	}
	_, err := h.Upload(ctx, tooMany)
	assert.ErrorIs(t, err, domain.ErrValidation)

	big := domain.FileUpload{Name: "big.png", Data: bytes.Repeat([]byte{1}, 2048)}
	_, err = h.Upload(ctx, []domain.FileUpload{big})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.Upload(ctx, []domain.FileUpload{{Name: "empty.png"}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	files, err := h.Upload(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, files)

	assert.Equal(t, 0, srv.Count("", "/api/upload"))
}

func TestUploadEachPreservesOrder(t *testing.T) {
	mu := new(MockUploader)
	for i, name := range []string{"a.png", "b.png", "c.png"} {
		name, id := name, int64(i+1)
		mu.On("Upload", mock.Anything, mock.MatchedBy(func(f []domain.FileUpload) bool {
			return len(f) == 1 && f[0].Name == name
		})).Return([]domain.UploadedFile{{ID: id, Name: name}}, nil)
	}

	proc := processor.NewOrderedProcessor(3, 10, zaptest.NewLogger(t))
	proc.Start()
	defer proc.Stop()

	h := NewHelper(mu, proc, Options{}, zaptest.NewLogger(t))
	files, err := h.UploadEach(context.Background(), []domain.FileUpload{png("a.png"), png("b.png"), png("c.png")})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, domain.UploadIDs(files))
	mu.AssertNotCalled(t, "DeleteUpload", mock.Anything, mock.Anything)
}

func TestUploadEachCompensatesOnFailure(t *testing.T) {
	mu := new(MockUploader)
	mu.On("Upload", mock.Anything, mock.MatchedBy(func(f []domain.FileUpload) bool { return f[0].Name == "a.png" })).
		Return([]domain.UploadedFile{{ID: 1, Name: "a.png"}}, nil)
	mu.On("Upload", mock.Anything, mock.MatchedBy(func(f []domain.FileUpload) bool { return f[0].Name == "b.png" })).
		Return(nil, &domain.APIError{Method: "POST", Path: "/upload", Status: 413, Message: "File too large"})
	mu.On("Upload", mock.Anything, mock.MatchedBy(func(f []domain.FileUpload) bool { return f[0].Name == "c.png" })).
		Return([]domain.UploadedFile{{ID: 3, Name: "c.png"}}, nil)
	mu.On("DeleteUpload", mock.Anything, int64(1)).Return(nil)
	mu.On("DeleteUpload", mock.Anything, int64(3)).Return(errors.New("gone"))

	proc := processor.NewOrderedProcessor(2, 10, zaptest.NewLogger(t))
	proc.Start()
	defer proc.Stop()

	h := NewHelper(mu, proc, Options{}, zaptest.NewLogger(t))
	_, err := h.UploadEach(context.Background(), []domain.FileUpload{png("a.png"), png("b.png"), png("c.png")})
	require.Error(t, err)
	assert.Equal(t, "File too large", domain.UserMessage(err, "upload failed"))
	mu.AssertCalled(t, "DeleteUpload", mock.Anything, int64(1))
	mu.AssertCalled(t, "DeleteUpload", mock.Anything, int64(3))
}

func TestUploadDeletesPartialBatch(t *testing.T) {
	mu := new(MockUploader)
	mu.On("Upload", mock.Anything, mock.Anything).
		Return([]domain.UploadedFile{{ID: 7, Name: "a.png"}}, fmt.Errorf("%w: sent 2 files, stored 1", domain.ErrShapeMismatch))
	mu.On("DeleteUpload", mock.Anything, int64(7)).Return(nil)

	h := NewHelper(mu, nil, Options{}, zaptest.NewLogger(t))
	files, err := h.Upload(context.Background(), []domain.FileUpload{png("a.png"), png("b.png")})
	require.ErrorIs(t, err, domain.ErrShapeMismatch)
	assert.Nil(t, files)
	mu.AssertCalled(t, "DeleteUpload", mock.Anything, int64(7))
}

func TestUploadEachDeletesFilesOfAbandonedBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var deleted sync.Map
	mu := new(MockUploader)
	// the caller goes away while the first file is being stored
	mu.On("Upload", mock.Anything, mock.MatchedBy(func(f []domain.FileUpload) bool { return f[0].Name == "a.png" })).
		Run(func(mock.Arguments) { cancel() }).
		Return([]domain.UploadedFile{{ID: 1, Name: "a.png"}}, nil)
	mu.On("Upload", mock.Anything, mock.MatchedBy(func(f []domain.FileUpload) bool { return f[0].Name == "b.png" })).
		Return([]domain.UploadedFile{{ID: 2, Name: "b.png"}}, nil).Maybe()
	mu.On("DeleteUpload", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { deleted.Store(args.Get(1).(int64), true) }).
		Return(nil)

	proc := processor.NewOrderedProcessor(1, 10, zaptest.NewLogger(t))
	proc.Start()
	defer proc.Stop()

	h := NewHelper(mu, proc, Options{}, zaptest.NewLogger(t))
	_, err := h.UploadEach(ctx, []domain.FileUpload{png("a.png"), png("b.png")})
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		_, ok := deleted.Load(int64(1))
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestFilesFromForm(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range []string{"one.png", "two.txt"} {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		if name == "one.png" {
			_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n0000"))
		} else {
			_, _ = part.Write([]byte("plain text"))
		}
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))

	files, err := FilesFromForm(req.MultipartForm.File["files"])
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "one.png", files[0].Name)
	assert.Equal(t, "image/png", files[0].ContentType)
	assert.Contains(t, files[1].ContentType, "text/plain")
}
