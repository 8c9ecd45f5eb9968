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

func TestCreateProductKeepsImageOrder(t *testing.T) {
	env := newTestEnv(t)
	catalog := NewCatalogUsecase(env.records, env.uploads, zaptest.NewLogger(t))

	rec, err := catalog.CreateProduct(context.Background(), map[string]interface{}{
		"name":  "Whey",
		"price": "2999",
	}, []domain.FileUpload{png("front.png"), png("back.png")})
	require.NoError(t, err)

	uploads := env.srv.Uploads()
	require.Len(t, uploads, 2)
	assert.Equal(t, "front.png", uploads[0].Name)
	assert.Equal(t, []interface{}{float64(uploads[0].ID), float64(uploads[1].ID)}, rec["images"])
	assert.Equal(t, float64(2999), rec["price"])
}

func TestCreateProductInvalidUploadsNothing(t *testing.T) {
	env := newTestEnv(t)
	catalog := NewCatalogUsecase(env.records, env.uploads, zaptest.NewLogger(t))

	_, err := catalog.CreateProduct(context.Background(), map[string]interface{}{"name": "Whey"}, []domain.FileUpload{png("front.png")})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, env.srv.Count("", "/api/upload"))
	assert.Equal(t, 0, env.srv.Count(http.MethodPost, "/api/products"))
}

func TestUpdateProductAppendsImages(t *testing.T) {
	env := newTestEnv(t)
	catalog := NewCatalogUsecase(env.records, env.uploads, zaptest.NewLogger(t))
	seeded := env.srv.Seed(domain.CollectionProducts, domain.Record{
		"name":  "Whey",
		"price": float64(2999),
		"images": []interface{}{
			map[string]interface{}{"id": float64(100), "url": "/uploads/a.png"},
			map[string]interface{}{"id": float64(101), "url": "/uploads/b.png"},
		},
	})

	rec, err := catalog.UpdateProduct(context.Background(), seeded[0].DocumentID(), map[string]interface{}{"stock": 5}, []domain.FileUpload{png("c.png")})
	require.NoError(t, err)

	newID := env.srv.Uploads()[0].ID
	assert.Equal(t, []interface{}{float64(100), float64(101), float64(newID)}, rec["images"])
	assert.Equal(t, float64(5), rec["stock"])
}

func TestUpdateProductExplicitImageList(t *testing.T) {
	env := newTestEnv(t)
	catalog := NewCatalogUsecase(env.records, env.uploads, zaptest.NewLogger(t))
	seeded := env.srv.Seed(domain.CollectionProducts, domain.Record{"name": "Whey", "price": float64(1)})

	rec, err := catalog.UpdateProduct(context.Background(), seeded[0].DocumentID(), map[string]interface{}{
		"images": []string{"7"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{float64(7)}, rec["images"])
	assert.Equal(t, 0, env.srv.Count(http.MethodGet, "/api/products"))
}

func TestCreateCategoryWithThumbnail(t *testing.T) {
	env := newTestEnv(t)
	catalog := NewCatalogUsecase(env.records, env.uploads, zaptest.NewLogger(t))

	rec, err := catalog.CreateCategory(context.Background(), map[string]interface{}{"name": "Pre Workout"}, []domain.FileUpload{png("thumb.png")})
	require.NoError(t, err)
	assert.Regexp(t, `^pre-workout-[a-z0-9]{6}$`, rec["slug"])
	assert.Equal(t, float64(env.srv.Uploads()[0].ID), rec["thumbnail"])

	_, err = catalog.CreateCategory(context.Background(), map[string]interface{}{"name": "X"}, []domain.FileUpload{png("a.png"), png("b.png")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateCategoryFailureRemovesThumbnail(t *testing.T) {
	env := newTestEnv(t)
	catalog := NewCatalogUsecase(env.records, env.uploads, zaptest.NewLogger(t))
	env.srv.Fail(http.MethodPost, "/api/categories", http.StatusBadRequest, "slug must be unique", 1)

	_, err := catalog.CreateCategory(context.Background(), map[string]interface{}{"name": "Gear", "slug": "gear"}, []domain.FileUpload{png("thumb.png")})
	require.Error(t, err)
	assert.Equal(t, "slug must be unique", domain.UserMessage(err, "failed to save category"))
	assert.Empty(t, env.srv.Uploads())
}

func TestOrderPaymentWithProof(t *testing.T) {
	env := newTestEnv(t)
	orders := NewOrderUsecase(env.records, env.uploads, zaptest.NewLogger(t))
	seeded := env.srv.Seed(domain.CollectionOrders, domain.Record{"orderStatus": "pending", "paymentStatus": "pending"})
	id := seeded[0].DocumentID()
	ctx := context.Background()

	rec, err := orders.UpdatePayment(ctx, id, "paid", []domain.FileUpload{png("receipt.png")})
	require.NoError(t, err)
	assert.Equal(t, "paid", rec["paymentStatus"])
	assert.Equal(t, float64(env.srv.Uploads()[0].ID), rec["document"])

	_, err = orders.UpdatePayment(ctx, id, "failed", []domain.FileUpload{png("receipt2.png")})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, env.srv.Uploads(), 1)

	_, err = orders.UpdatePayment(ctx, id, "lost", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestOrderStatus(t *testing.T) {
	env := newTestEnv(t)
	orders := NewOrderUsecase(env.records, env.uploads, zaptest.NewLogger(t))
	seeded := env.srv.Seed(domain.CollectionOrders, domain.Record{"orderStatus": "pending"})
	ctx := context.Background()

	_, err := orders.UpdateStatus(ctx, seeded[0].DocumentID(), "teleported")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, env.srv.Count(http.MethodPut, "/api/orders"))

	rec, err := orders.UpdateStatus(ctx, seeded[0].DocumentID(), "shipped")
	require.NoError(t, err)
	assert.Equal(t, "shipped", rec["orderStatus"])
	assert.Contains(t, env.inv.Invalidated(), domain.CollectionUsers)
}
