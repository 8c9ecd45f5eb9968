package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/usecases"
)

// createRecord decodes a JSON body and creates a record of collection
func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request, collection, failure string) {
	fields := map[string]interface{}{}
	if err := decodeJSON(r, &fields); err != nil {
		h.fail(w, r, err, failure)
		return
	}
	created, err := h.deps.Records.Create(r.Context(), collection, fields)
	if err != nil {
		h.fail(w, r, err, failure)
		return
	}
	h.respondJSON(w, r, http.StatusCreated, map[string]interface{}{"data": created})
}

// updateRecord decodes a JSON body and applies it to {documentId}
func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request, collection, failure string) {
	fields := map[string]interface{}{}
	if err := decodeJSON(r, &fields); err != nil {
		h.fail(w, r, err, failure)
		return
	}
	updated, err := h.deps.Records.Update(r.Context(), collection, chi.URLParam(r, "documentId"), fields)
	if err != nil {
		h.fail(w, r, err, failure)
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"data": updated})
}

// ListCoupons handles GET /coupons
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, listDefs["coupons"])
}

// CreateCoupon handles POST /coupons
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	h.createRecord(w, r, domain.CollectionCoupons, "failed to save coupon")
}

// UpdateCoupon handles PUT /coupons/{documentId}
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	h.updateRecord(w, r, domain.CollectionCoupons, "failed to save coupon")
}

// DeleteCoupon handles DELETE /coupons/{documentId}
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	h.deleteRecord(w, r, domain.CollectionCoupons, chi.URLParam(r, "documentId"))
}

// GenerateCouponCode handles GET /coupons/generate-code
func (h *Handler) GenerateCouponCode(w http.ResponseWriter, r *http.Request) {
	code, err := usecases.GenerateCode()
	if err != nil {
		h.fail(w, r, err, "failed to generate code")
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]string{"code": code})
}

// ListPlans handles GET /plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, listDefs["plans"])
}

// CreatePlan handles POST /plans
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	h.createRecord(w, r, domain.CollectionPlans, "failed to save plan")
}

// UpdatePlan handles PUT /plans/{documentId}
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	h.updateRecord(w, r, domain.CollectionPlans, "failed to save plan")
}

// DeletePlan handles DELETE /plans/{documentId}
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	h.deleteRecord(w, r, domain.CollectionPlans, chi.URLParam(r, "documentId"))
}

// ListCategories handles GET /categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, listDefs["categories"])
}

// CreateCategory handles POST /categories. Multipart with an optional
// "thumbnail" file, or JSON.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	fields, files, ok := h.readForm(w, r, "thumbnail")
	if !ok {
		return
	}
	created, err := h.deps.Catalog.CreateCategory(r.Context(), fields, files)
	if err != nil {
		h.fail(w, r, err, "failed to save category")
		return
	}
	h.respondJSON(w, r, http.StatusCreated, map[string]interface{}{"data": created})
}

// UpdateCategory handles PUT /categories/{documentId}
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	fields, files, ok := h.readForm(w, r, "thumbnail")
	if !ok {
		return
	}
	updated, err := h.deps.Catalog.UpdateCategory(r.Context(), chi.URLParam(r, "documentId"), fields, files)
	if err != nil {
		h.fail(w, r, err, "failed to save category")
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"data": updated})
}

// DeleteCategory handles DELETE /categories/{documentId}
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	h.deleteRecord(w, r, domain.CollectionCategories, chi.URLParam(r, "documentId"))
}

// ListProducts handles GET /products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, listDefs["products"])
}

// GetProduct handles GET /products/{documentId}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	h.serveDetail(w, r, listDefs["products"], chi.URLParam(r, "documentId"))
}

// CreateProduct handles POST /products. Files of the "images" field are
// attached in upload order.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	fields, files, ok := h.readForm(w, r, "images")
	if !ok {
		return
	}
	created, err := h.deps.Catalog.CreateProduct(r.Context(), fields, files)
	if err != nil {
		h.fail(w, r, err, "failed to save product")
		return
	}
	h.respondJSON(w, r, http.StatusCreated, map[string]interface{}{"data": created})
}

// UpdateProduct handles PUT /products/{documentId}
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	fields, files, ok := h.readForm(w, r, "images")
	if !ok {
		return
	}
	updated, err := h.deps.Catalog.UpdateProduct(r.Context(), chi.URLParam(r, "documentId"), fields, files)
	if err != nil {
		h.fail(w, r, err, "failed to save product")
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"data": updated})
}

// DeleteProduct handles DELETE /products/{documentId}
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	h.deleteRecord(w, r, domain.CollectionProducts, chi.URLParam(r, "documentId"))
}
