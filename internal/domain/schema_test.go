package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSubscription(t *testing.T) {
	r := Record{
		"id":                float64(7),
		"documentId":        "sub1",
		"startDate":         "2024-01-15",
		"endDate":           "2024-04-15T00:00:00.000Z",
		"currentPlanAmount": float64(3000),
		"paidAmount":        float64(1000),
		"plan":              map[string]interface{}{"documentId": "p1", "title": "Quarterly", "duration": float64(3), "price": float64(3000)},
		"invoices":          []interface{}{map[string]interface{}{"id": float64(11), "documentId": "i1", "amount": float64(1000)}},
	}

	sub, err := Decode[Subscription]("subscriptions", r)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sub.ID)
	assert.Equal(t, 2024, sub.StartDate.Year())
	assert.Equal(t, float64(2000), sub.Pending())
	assert.Equal(t, []int64{11}, sub.InvoiceIDs())
	assert.Equal(t, "Quarterly", sub.Plan.Title)
}

func TestDecodeMissingDocumentID(t *testing.T) {
	_, err := Decode[Coupon]("coupons", Record{"code": "AB12C9"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "coupons", shapeErr.Collection)
	assert.Equal(t, "documentId", shapeErr.Field)
}

func TestDecodeWrongType(t *testing.T) {
	_, err := Decode[Product]("products", Record{"documentId": "p", "price": "free"})
	require.Error(t, err)

	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "price", shapeErr.Field)
}

func TestDecodeAll(t *testing.T) {
	records := []Record{
		{"documentId": "a", "title": "Monthly", "duration": float64(1), "price": float64(1000)},
		{"documentId": "b", "title": "Yearly", "duration": float64(12), "price": float64(9000)},
	}
	plans, err := DecodeAll[GymPlan]("gym-plans", records)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Yearly", plans[1].Title)

	records = append(records, Record{"title": "broken"})
	_, err = DecodeAll[GymPlan]("gym-plans", records)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestHomePageReviewStars(t *testing.T) {
	_, err := Decode[HomePage]("home-page", Record{
		"reviews": []interface{}{map[string]interface{}{"name": "A", "stars": float64(6)}},
	})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDecodeUnpopulatedRelations(t *testing.T) {
	sub, err := Decode[Subscription]("subscriptions", Record{
		"documentId": "s1",
		"plan":       float64(3),
		"user":       float64(5),
		"invoices":   []interface{}{float64(11), map[string]interface{}{"id": float64(12), "documentId": "i2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), sub.Plan.ID)
	assert.Equal(t, int64(5), sub.User.ID)
	assert.Equal(t, []int64{11, 12}, sub.InvoiceIDs())

	page, err := Decode[HomePage]("home-page", Record{"top_banners": []interface{}{float64(1), float64(2)}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TopBanners[1].ID)
}
