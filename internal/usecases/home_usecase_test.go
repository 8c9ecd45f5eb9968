package usecases

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

func seedHome(env *testEnv) {
	env.srv.SetSingle(domain.SingleHomePage, domain.Record{
		"id":         float64(1),
		"documentId": "home",
		"top_banners": []interface{}{
			map[string]interface{}{"id": float64(500), "url": "/uploads/banner.png"},
		},
		"about_images": []interface{}{},
		"reviews": []interface{}{
			map[string]interface{}{"name": "Rahul", "description": "Great gym", "stars": float64(5)},
		},
	})
}

func TestHomeGet(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env)
	home := NewHomeUsecase(env.records, env.uploads, zaptest.NewLogger(t))

	page, err := home.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, page.TopBanners, 1)
	assert.Equal(t, int64(500), page.TopBanners[0].ID)
	require.Len(t, page.Reviews, 1)
	assert.Equal(t, "Rahul", page.Reviews[0].Name)
}

func TestSaveSectionTouchesOnlyThatSection(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env)
	home := NewHomeUsecase(env.records, env.uploads, zaptest.NewLogger(t))
	ctx := context.Background()

	err := home.SaveSection(ctx, SectionReviews, SectionInput{Reviews: []domain.Review{
		{Name: " Asha ", Description: "Clean", Stars: 4},
	}})
	require.NoError(t, err)

	stored := env.srv.Single(domain.SingleHomePage)
	assert.Equal(t, []interface{}{map[string]interface{}{"name": "Asha", "description": "Clean", "stars": float64(4)}}, stored["reviews"])
	assert.Len(t, stored["top_banners"], 1)
	assert.Contains(t, env.inv.Invalidated(), domain.SingleHomePage)

	err = home.SaveSection(ctx, SectionBanners, SectionInput{})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{}, env.srv.Single(domain.SingleHomePage)["top_banners"])
}

func TestSaveSectionRejectsBadReviews(t *testing.T) {
	env := newTestEnv(t)
	home := NewHomeUsecase(env.records, env.uploads, zaptest.NewLogger(t))
	ctx := context.Background()

	err := home.SaveSection(ctx, SectionReviews, SectionInput{Reviews: []domain.Review{{Name: "A", Stars: 6}}})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "reviews[0].stars", verr.Field)

	err = home.SaveSection(ctx, SectionReviews, SectionInput{Reviews: []domain.Review{{Stars: 3}}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = home.SaveSection(ctx, "footer", SectionInput{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, env.srv.Count(http.MethodPut, "/api"))
}

func TestUploadSectionImagesAppends(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env)
	home := NewHomeUsecase(env.records, env.uploads, zaptest.NewLogger(t))

	page, err := home.UploadSectionImages(context.Background(), SectionBanners, []domain.FileUpload{png("a.png"), png("b.png")})
	require.NoError(t, err)

	uploads := env.srv.Uploads()
	require.Len(t, uploads, 2)
	require.Len(t, page.TopBanners, 3)
	assert.Equal(t, []int64{500, uploads[0].ID, uploads[1].ID}, []int64{page.TopBanners[0].ID, page.TopBanners[1].ID, page.TopBanners[2].ID})

	_, err = home.UploadSectionImages(context.Background(), SectionReviews, []domain.FileUpload{png("c.png")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUploadSectionImagesFailureCleansUp(t *testing.T) {
	env := newTestEnv(t)
	seedHome(env)
	home := NewHomeUsecase(env.records, env.uploads, zaptest.NewLogger(t))
	env.srv.Fail(http.MethodPut, "/api/home-page", http.StatusInternalServerError, "boom", 1)

	_, err := home.UploadSectionImages(context.Background(), SectionAbout, []domain.FileUpload{png("a.png")})
	require.Error(t, err)
	assert.Empty(t, env.srv.Uploads())
}
