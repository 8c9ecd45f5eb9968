package listview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/processor"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/query"
)

func result(records ...domain.Record) *domain.CollectionResult {
	return &domain.CollectionResult{
		Records: records,
		Meta:    domain.Meta{Page: 1, PageSize: 25, PageCount: domain.PageCountFor(len(records), 25), Total: len(records)},
	}
}

func TestRenderStatesAreExclusive(t *testing.T) {
	tests := []struct {
		name  string
		snap  query.Snapshot
		state State
		rows  int
	}{
		{"nothing fetched", query.Snapshot{IsLoading: true}, StateLoading, 0},
		{"empty", query.Snapshot{Data: result()}, StateEmpty, 0},
		{"ready", query.Snapshot{Data: result(domain.Record{"documentId": "a"}, domain.Record{"documentId": "b"})}, StateReady, 2},
		{"error keeps last good rows", query.Snapshot{Data: result(domain.Record{"documentId": "a"}), Err: errors.New("boom")}, StateError, 1},
		{"error without data", query.Snapshot{Err: errors.New("boom")}, StateError, 0},
		{"revalidating keeps rows", query.Snapshot{Data: result(domain.Record{"documentId": "a"}), IsLoading: true}, StateReady, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Render(tt.snap, nil)
			assert.Equal(t, tt.state, v.State)
			assert.Len(t, v.Rows, tt.rows)
			if tt.state == StateError {
				assert.NotEmpty(t, v.Error)
			} else {
				assert.Empty(t, v.Error)
			}
		})
	}
}

func TestRenderErrorMarksKeptRowsStale(t *testing.T) {
	v := Render(query.Snapshot{
		Data: result(domain.Record{"documentId": "a"}, domain.Record{"documentId": "b"}),
		Err:  errors.New("boom"),
	}, nil)
	assert.Equal(t, StateError, v.State)
	assert.True(t, v.Stale)
	require.Len(t, v.Rows, 2)
	assert.Equal(t, "a", v.Rows[0].DocumentID)

	v = Render(query.Snapshot{Err: errors.New("boom")}, nil)
	assert.False(t, v.Stale)
	assert.Empty(t, v.Rows)
}

func TestRenderSurfacesServerMessage(t *testing.T) {
	err := &domain.APIError{Status: 403, Message: "Forbidden"}
	v := Render(query.Snapshot{Err: err}, nil)
	assert.Equal(t, StateError, v.State)
	assert.Equal(t, "Forbidden", v.Error)

	v = Render(query.Snapshot{Err: errors.New("dial tcp: refused")}, nil)
	assert.Equal(t, "failed to load records", v.Error)
}

func TestRenderDetailNotFound(t *testing.T) {
	v := RenderDetail(query.Snapshot{Data: result()}, nil)
	assert.Equal(t, StateNotFound, v.State)
	assert.Nil(t, v.Pagination)

	v = RenderDetail(query.Snapshot{Err: domain.ErrNotFound}, nil)
	assert.Equal(t, StateNotFound, v.State)

	v = RenderDetail(query.Snapshot{IsLoading: true}, nil)
	assert.Equal(t, StateLoading, v.State)

	v = RenderDetail(query.Snapshot{Err: errors.New("boom")}, nil)
	assert.Equal(t, StateError, v.State)
}

func TestBadgesHaveDefaults(t *testing.T) {
	assert.Equal(t, Badge{Label: "Shipped", Tone: ToneAccent}, OrderStatusBadge("shipped"))
	assert.Equal(t, Badge{Label: "on-hold", Tone: ToneSecondary}, OrderStatusBadge("on-hold"))
	assert.Equal(t, Badge{Label: "Refunded", Tone: ToneMuted}, PaymentStatusBadge("refunded"))
	assert.Equal(t, Badge{Label: "unknown", Tone: ToneSecondary}, PaymentStatusBadge(""))
	assert.Equal(t, "Admin", UserTypeBadge("admin").Label)
	assert.Equal(t, "Expired", SubscriptionBadge(true).Label)
	assert.Equal(t, "Valid", CouponBadge(false).Label)
}

func TestOrderRowActions(t *testing.T) {
	row := RowFor(domain.CollectionOrders)(domain.Record{
		"id": float64(3), "documentId": "o3", "orderStatus": "delivered", "paymentStatus": "paid",
		"createdAt": "2024-03-05T14:30:00.000Z",
	})
	assert.Equal(t, "o3", row.DocumentID)
	assert.Equal(t, int64(3), row.ID)
	assert.Equal(t, "Delivered", row.Badges["orderStatus"].Label)
	assert.Equal(t, "Paid", row.Badges["paymentStatus"].Label)
	assert.Equal(t, []Action{
		{Name: ActionView, Enabled: true},
		{Name: ActionEdit, Enabled: false},
		{Name: ActionDelete, Enabled: true, Confirm: true},
	}, row.Actions)
	assert.Equal(t, "05 Mar 2024, 02:30 PM", row.Display["createdAt"])

	pending := RowActions(domain.CollectionOrders, domain.Record{"orderStatus": "pending"})
	assert.True(t, pending[1].Enabled)
}

func TestProductDisplayPrice(t *testing.T) {
	row := RowFor(domain.CollectionProducts)(domain.Record{"documentId": "p", "price": float64(999), "discount": float64(10)})
	assert.Equal(t, 899.1, row.Display["finalPrice"])

	row = RowFor(domain.CollectionProducts)(domain.Record{"documentId": "p", "price": float64(999)})
	assert.NotContains(t, row.Display, "finalPrice")
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "-", FormatDate(time.Time{}, false))
	ts := time.Date(2024, 1, 9, 18, 5, 0, 0, time.UTC)
	assert.Equal(t, "09 Jan 2024", FormatDate(ts, false))
	assert.Equal(t, "09 Jan 2024, 06:05 PM", FormatDate(ts, true))
	assert.Equal(t, "-", FormatDateString("", true))
	assert.Equal(t, "-", FormatDateString("yesterday", true))
	assert.Equal(t, "09 Jan 2024", FormatDateString("2024-01-09T18:05:00Z", false))
}

func TestDescriptionHTMLEscapesRawHTML(t *testing.T) {
	html, err := DescriptionHTML("**Whey** protein\n<script>alert(1)</script>")
	require.NoError(t, err)
	assert.Contains(t, html, "<strong>Whey</strong>")
	assert.NotContains(t, html, "<script>")
}

func TestAddPreviewsKeepsRowOrder(t *testing.T) {
	proc := processor.NewOrderedProcessor(3, 10, zaptest.NewLogger(t))
	proc.Start()
	defer proc.Stop()

	records := make([]domain.Record, 6)
	for i := range records {
		records[i] = domain.Record{"documentId": string(rune('a' + i)), "description": "item *" + string(rune('a'+i)) + "*"}
	}
	v := Render(query.Snapshot{Data: result(records...)}, RowFor(domain.CollectionProducts))

	p := NewPreviewer(proc, zaptest.NewLogger(t))
	require.NoError(t, p.AddPreviews(context.Background(), &v, "description"))
	for i, row := range v.Rows {
		assert.Equal(t, "<p>item <em>"+string(rune('a'+i))+"</em></p>\n", row.Display["descriptionHtml"])
	}

	empty := Render(query.Snapshot{Data: result()}, nil)
	assert.NoError(t, p.AddPreviews(context.Background(), &empty, "description"))
}
