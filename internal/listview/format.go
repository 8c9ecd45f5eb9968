package listview

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

const (
	dateLayout     = "02 Jan 2006"
	dateTimeLayout = "02 Jan 2006, 03:04 PM"
	emptyValue     = "-"
)

// Raw HTML in descriptions is escaped, WithUnsafe is not set.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// FormatDate renders t for a table cell; the zero time renders as "-"
func FormatDate(t time.Time, withTime bool) string {
	if t.IsZero() {
		return emptyValue
	}
	if withTime {
		return t.Format(dateTimeLayout)
	}
	return t.Format(dateLayout)
}

// FormatDateString parses an RFC 3339 timestamp and formats it.
// Empty or unparsable input renders as "-".
func FormatDateString(raw string, withTime bool) string {
	if raw == "" {
		return emptyValue
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return emptyValue
	}
	return FormatDate(t, withTime)
}

// DescriptionHTML renders markdown to safe HTML
func DescriptionHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render description: %w", err)
	}
	return buf.String(), nil
}

// displayFields are derived, presentation-only values
func displayFields(collection string, rec domain.Record) map[string]interface{} {
	out := map[string]interface{}{}
	if created := rec.String("createdAt"); created != "" {
		out["createdAt"] = FormatDateString(created, false)
	}
	switch collection {
	case domain.CollectionProducts:
		price, discount := rec.Float("price"), rec.Float("discount")
		if discount > 0 {
			out["finalPrice"] = math.Round((price-price*math.Min(discount, 100)/100)*100) / 100
		}
	case domain.CollectionSubscriptions:
		out["startDate"] = FormatDateString(rec.String("startDate"), false)
		out["endDate"] = FormatDateString(rec.String("endDate"), false)
		out["pending"] = rec.Float("currentPlanAmount") - rec.Float("paidAmount")
	case domain.CollectionOrders:
		out["createdAt"] = FormatDateString(rec.String("createdAt"), true)
	}
	return out
}

// Previewer renders markdown previews of many rows on the worker pool
type Previewer struct {
	proc   domain.Processor
	logger *zap.Logger
}

// NewPreviewer creates a previewer
func NewPreviewer(proc domain.Processor, logger *zap.Logger) *Previewer {
	return &Previewer{proc: proc, logger: logger}
}

// AddPreviews renders field of every row to HTML into Display[field+"Html"].
// A row whose markdown fails to render keeps no preview.
func (p *Previewer) AddPreviews(ctx context.Context, v *View, field string) error {
	if v.State != StateReady {
		return nil
	}
	tasks := make([]domain.Task, len(v.Rows))
	for i := range v.Rows {
		src := v.Rows[i].Fields.String(field)
		tasks[i] = func(context.Context) (interface{}, error) {
			return DescriptionHTML(src)
		}
	}

	results, err := p.proc.Process(ctx, tasks)
	if err != nil {
		return fmt.Errorf("render previews: %w", err)
	}
	for i, r := range results {
		if r.Err != nil {
			p.logger.Debug("preview skipped", zap.String("document_id", v.Rows[i].DocumentID), zap.Error(r.Err))
			continue
		}
		if v.Rows[i].Display == nil {
			v.Rows[i].Display = map[string]interface{}{}
		}
		v.Rows[i].Display[field+"Html"] = r.Value
	}
	return nil
}
