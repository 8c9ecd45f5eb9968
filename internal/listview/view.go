// Package listview turns query snapshots into what a list or detail screen
// shows: one state out of loading, empty, error and ready, rows with
// status badges and the actions allowed on each row.
package listview

import (
	"errors"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/query"
)

// State is the single thing a list renders at a time
type State string

const (
	StateLoading  State = "loading"
	StateEmpty    State = "empty"
	StateError    State = "error"
	StateReady    State = "ready"
	StateNotFound State = "not_found"
)

// Row is one rendered record
type Row struct {
	ID         int64                  `json:"id"`
	DocumentID string                 `json:"documentId"`
	Fields     domain.Record          `json:"fields"`
	Badges     map[string]Badge       `json:"badges,omitempty"`
	Actions    []Action               `json:"actions"`
	Display    map[string]interface{} `json:"display,omitempty"`
}

// RowFunc renders one record
type RowFunc func(rec domain.Record) Row

// View is the rendered list. Error is only set in StateError. In
// StateError Rows holds the last good page, if any, with Stale set.
type View struct {
	State      State        `json:"state"`
	Rows       []Row        `json:"rows"`
	Error      string       `json:"error,omitempty"`
	Stale      bool         `json:"stale,omitempty"`
	Pagination *domain.Meta `json:"pagination,omitempty"`
	Generation uint64       `json:"generation"`
}

// Render picks the state of a list from a snapshot. An error wins over
// data kept from an earlier fetch; those rows are still returned, marked
// stale, so the screen can keep them under the error message.
func Render(snap query.Snapshot, rowFn RowFunc) View {
	v := View{Rows: []Row{}, Generation: snap.Generation}
	if snap.Data != nil {
		meta := snap.Data.Meta
		v.Pagination = &meta
	}

	switch {
	case snap.Err != nil:
		v.State = StateError
		v.Error = domain.UserMessage(snap.Err, "failed to load records")
		if snap.Data != nil && len(snap.Data.Records) > 0 {
			v.Rows = renderRows(snap.Data.Records, rowFn)
			v.Stale = true
		}
	case snap.Data == nil:
		v.State = StateLoading
	case len(snap.Data.Records) == 0:
		v.State = StateEmpty
	default:
		v.State = StateReady
		v.Stale = snap.Stale
		v.Rows = renderRows(snap.Data.Records, rowFn)
	}
	return v
}

func renderRows(records []domain.Record, rowFn RowFunc) []Row {
	if rowFn == nil {
		rowFn = PlainRow
	}
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = rowFn(rec)
	}
	return rows
}

// RenderDetail renders a detail screen read with a documentId filter.
// An empty result is StateNotFound, not StateEmpty.
func RenderDetail(snap query.Snapshot, rowFn RowFunc) View {
	v := Render(snap, rowFn)
	v.Pagination = nil
	if v.State == StateEmpty || (v.State == StateError && errors.Is(snap.Err, domain.ErrNotFound)) {
		v.State = StateNotFound
		v.Error = ""
	}
	return v
}

// PlainRow renders a record with the default view action only
func PlainRow(rec domain.Record) Row {
	return Row{
		ID:         rec.ID(),
		DocumentID: rec.DocumentID(),
		Fields:     rec,
		Actions:    []Action{{Name: ActionView, Enabled: true}},
	}
}
