package handlers

import (
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/listview"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/pagination"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/query"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/upload"
)

var sortPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*:(asc|desc)$`)

// listDef describes how a list screen reads one collection
type listDef struct {
	collection string // backend collection
	rows       string // row renderer, defaults to collection
	search     []string
	populate   []string
	sort       string
	filters    map[string]string // query param -> field matched with $eq
	preview    string            // markdown field rendered into Display
	deletable  bool
}

// listDefs are the collections reachable through /collections/{name}
var listDefs = map[string]listDef{
	"products": {
		collection: domain.CollectionProducts,
		search:     []string{"name"},
		populate:   []string{"category", "images"},
		sort:       "createdAt:desc",
		filters:    map[string]string{"category": "category.documentId"},
		preview:    "description",
		deletable:  true,
	},
	"categories": {
		collection: domain.CollectionCategories,
		search:     []string{"name"},
		populate:   []string{"thumbnail"},
		sort:       "createdAt:desc",
		preview:    "description",
		deletable:  true,
	},
	"orders": {
		collection: domain.CollectionOrders,
		search:     []string{"user.email", "user.firstname", "product.name"},
		populate:   []string{"user", "product", "document"},
		sort:       "createdAt:desc",
		filters:    map[string]string{"orderStatus": "orderStatus", "paymentStatus": "paymentStatus"},
		deletable:  true,
	},
	"users": {
		collection: domain.CollectionPaginatedUsers,
		rows:       domain.CollectionUsers,
		search:     []string{"firstname", "lastname", "email", "phone"},
		populate:   []string{"profile"},
		sort:       "createdAt:desc",
		filters:    map[string]string{"type": "type"},
	},
	"subscriptions": {
		collection: domain.CollectionSubscriptions,
		search:     []string{"user.firstname", "user.email", "user.phone"},
		populate:   []string{"user", "plan", "invoices"},
		sort:       "createdAt:desc",
		filters:    map[string]string{"plan": "plan.documentId"},
		deletable:  true,
	},
	"coupons": {
		collection: domain.CollectionCoupons,
		search:     []string{"title", "code"},
		sort:       "createdAt:desc",
		deletable:  true,
	},
	"plans": {
		collection: domain.CollectionPlans,
		search:     []string{"title"},
		sort:       "price:asc",
		deletable:  true,
	},
	"invoices": {
		collection: domain.CollectionInvoices,
		populate:   []string{"subscription"},
		sort:       "paymentDate:desc",
	},
}

func (s listDef) rowFunc() listview.RowFunc {
	if s.rows != "" {
		return listview.RowFor(s.rows)
	}
	return listview.RowFor(s.collection)
}

// listQuery builds the descriptor for a list request: free text over the
// search fields, exact filters, sort and the page state.
func (s listDef) listQuery(params url.Values, state pagination.State) (domain.Query, error) {
	q := domain.Query{
		Populate:   s.populate,
		Pagination: &domain.Pagination{Page: state.Page, PageSize: state.PageSize},
	}

	if term := strings.TrimSpace(params.Get("q")); term != "" && len(s.search) > 0 {
		alts := make([]domain.Filter, len(s.search))
		for i, field := range s.search {
			alts[i] = domain.ContainsI(field, term)
		}
		q.Filters = append(q.Filters, domain.Or(alts...))
	}

	// sorted so identical requests encode to the same cache key
	names := make([]string, 0, len(s.filters))
	for param := range s.filters {
		names = append(names, param)
	}
	sort.Strings(names)
	for _, param := range names {
		if v := strings.TrimSpace(params.Get(param)); v != "" {
			q.Filters = append(q.Filters, domain.Eq(s.filters[param], v))
		}
	}

	if s.collection == domain.CollectionSubscriptions {
		switch params.Get("status") {
		case "":
		case "active":
			q.Filters = append(q.Filters, domain.Eq("expired", false))
		case "expired":
			q.Filters = append(q.Filters, domain.Eq("expired", true))
		default:
			return q, domain.NewValidationError("status", "must be active or expired")
		}
	}

	sort := s.sort
	if raw := params.Get("sort"); raw != "" {
		if !sortPattern.MatchString(raw) {
			return q, domain.NewValidationError("sort", "must look like field:asc or field:desc")
		}
		sort = raw
	}
	if sort != "" {
		q.Sort = []string{sort}
	}
	return q, nil
}

// paginationBody is the page selector sent next to a list
type paginationBody struct {
	State   pagination.State  `json:"state"`
	Links   map[string]string `json:"links"`
	Control controlBody       `json:"control"`
}

type controlBody struct {
	Visible   bool              `json:"visible"`
	PageCount int               `json:"pageCount"`
	Items     []pagination.Item `json:"items"`
	HasPrev   bool              `json:"hasPrev"`
	HasNext   bool              `json:"hasNext"`
}

type listResponse struct {
	View       listview.View  `json:"view"`
	Pagination paginationBody `json:"pagination"`
}

func newPaginationBody(u *url.URL, state pagination.State, meta *domain.Meta) paginationBody {
	ctl := pagination.NewControl(meta, state.Page)
	links := map[string]string{"self": state.ApplyTo(u).String()}
	if ctl.Visible() && ctl.PageCount() > 0 {
		links["first"] = state.URLFor(u, 1)
		links["last"] = state.URLFor(u, ctl.PageCount())
	}
	if p, ok := ctl.Prev(); ok {
		links["prev"] = state.URLFor(u, p)
	}
	if n, ok := ctl.Next(); ok {
		links["next"] = state.URLFor(u, n)
	}
	return paginationBody{
		State: state,
		Links: links,
		Control: controlBody{
			Visible:   ctl.Visible(),
			PageCount: ctl.PageCount(),
			Items:     ctl.Items(),
			HasPrev:   ctl.HasPrev(),
			HasNext:   ctl.HasNext(),
		},
	}
}

// ListCollection handles GET /collections/{collection}
func (h *Handler) ListCollection(w http.ResponseWriter, r *http.Request) {
	def, ok := listDefs[chi.URLParam(r, "collection")]
	if !ok {
		h.respondError(w, r, http.StatusNotFound, "unknown collection")
		return
	}
	h.serveList(w, r, def)
}

func (h *Handler) serveList(w http.ResponseWriter, r *http.Request, def listDef) {
	state := pagination.FromURL(r.URL.Query(), h.pageOpts)
	q, err := def.listQuery(r.URL.Query(), state)
	if err != nil {
		h.fail(w, r, err, "invalid list parameters")
		return
	}

	view := h.deps.Query.Watch(def.collection, q)
	defer view.Close()
	snap := view.Load(r.Context())

	lv := listview.Render(snap, def.rowFunc())
	if def.preview != "" && h.deps.Previews != nil {
		if err := h.deps.Previews.AddPreviews(r.Context(), &lv, def.preview); err != nil {
			h.logger.Warn("previews not rendered", zap.String("collection", def.collection), zap.Error(err))
		}
	}

	status := http.StatusOK
	if lv.State == listview.StateError {
		status = statusFor(snap.Err)
	}
	h.respondJSON(w, r, status, listResponse{
		View:       lv,
		Pagination: newPaginationBody(r.URL, state, lv.Pagination),
	})
}

// GetCollectionRecord handles GET /collections/{collection}/{documentId}
func (h *Handler) GetCollectionRecord(w http.ResponseWriter, r *http.Request) {
	def, ok := listDefs[chi.URLParam(r, "collection")]
	if !ok {
		h.respondError(w, r, http.StatusNotFound, "unknown collection")
		return
	}
	h.serveDetail(w, r, def, chi.URLParam(r, "documentId"))
}

func (h *Handler) serveDetail(w http.ResponseWriter, r *http.Request, def listDef, documentID string) {
	view := h.deps.Query.Watch(def.collection, query.ByDocumentID(documentID, def.populate...))
	defer view.Close()
	snap := view.Load(r.Context())

	lv := listview.RenderDetail(snap, def.rowFunc())
	if def.preview != "" && h.deps.Previews != nil {
		if err := h.deps.Previews.AddPreviews(r.Context(), &lv, def.preview); err != nil {
			h.logger.Warn("previews not rendered", zap.String("collection", def.collection), zap.Error(err))
		}
	}

	status := http.StatusOK
	switch lv.State {
	case listview.StateNotFound:
		status = http.StatusNotFound
	case listview.StateError:
		status = statusFor(snap.Err)
	}
	h.respondJSON(w, r, status, map[string]interface{}{"view": lv})
}

// DeleteCollectionRecord handles DELETE /collections/{collection}/{documentId}.
// Without confirm=true it answers 409 and nothing is sent to the backend.
func (h *Handler) DeleteCollectionRecord(w http.ResponseWriter, r *http.Request) {
	def, ok := listDefs[chi.URLParam(r, "collection")]
	if !ok {
		h.respondError(w, r, http.StatusNotFound, "unknown collection")
		return
	}
	if !def.deletable {
		h.respondError(w, r, http.StatusMethodNotAllowed, "records of this collection are deleted from their own screen")
		return
	}
	h.deleteRecord(w, r, def.collection, chi.URLParam(r, "documentId"))
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request, collection, documentID string) {
	if !confirmed(r) {
		h.respondError(w, r, http.StatusConflict, "delete must be confirmed")
		return
	}
	if err := h.deps.Records.Delete(r.Context(), collection, documentID); err != nil {
		h.fail(w, r, err, "failed to delete record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func confirmed(r *http.Request) bool {
	return r.URL.Query().Get("confirm") == "true"
}

// Upload handles POST /uploads: multipart field "files", order kept
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	files, ok := h.formFiles(w, r, "files")
	if !ok {
		return
	}
	if len(files) == 0 {
		h.respondError(w, r, http.StatusBadRequest, "files: at least one file is required")
		return
	}
	uploaded, err := h.deps.Uploads.Upload(r.Context(), files)
	if err != nil {
		h.fail(w, r, err, "failed to upload files")
		return
	}
	h.respondJSON(w, r, http.StatusCreated, map[string]interface{}{"data": uploaded})
}

// formFiles parses a multipart body and returns the files of field
func (h *Handler) formFiles(w http.ResponseWriter, r *http.Request, field string) ([]domain.FileUpload, bool) {
	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid multipart form")
		return nil, false
	}
	if r.MultipartForm == nil {
		return nil, true
	}
	files, err := upload.FilesFromForm(r.MultipartForm.File[field])
	if err != nil {
		h.fail(w, r, err, "failed to read uploaded files")
		return nil, false
	}
	return files, true
}
