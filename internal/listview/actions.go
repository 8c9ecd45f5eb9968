package listview

import "github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"

// Action names
const (
	ActionView   = "view"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

// Action is a row action. Delete always needs an explicit confirmation
// before the client may call it.
type Action struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Confirm bool   `json:"confirm,omitempty"`
}

// orders in a final state are read-only
var finalOrderStatuses = map[string]bool{
	"delivered": true,
	"cancelled": true,
}

// RowActions returns the view, edit and delete actions for rec
func RowActions(collection string, rec domain.Record) []Action {
	edit := true
	if collection == domain.CollectionOrders && finalOrderStatuses[rec.String("orderStatus")] {
		edit = false
	}
	return []Action{
		{Name: ActionView, Enabled: true},
		{Name: ActionEdit, Enabled: edit},
		{Name: ActionDelete, Enabled: true, Confirm: true},
	}
}

// RowFor returns the default row renderer of a collection
func RowFor(collection string) RowFunc {
	return func(rec domain.Record) Row {
		row := Row{
			ID:         rec.ID(),
			DocumentID: rec.DocumentID(),
			Fields:     rec,
			Badges:     badgesFor(collection, rec),
			Actions:    RowActions(collection, rec),
		}
		if display := displayFields(collection, rec); len(display) > 0 {
			row.Display = display
		}
		return row
	}
}
