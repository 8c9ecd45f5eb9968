package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

// ListOrders handles GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, listDefs["orders"])
}

// GetOrder handles GET /orders/{documentId}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	h.serveDetail(w, r, listDefs["orders"], chi.URLParam(r, "documentId"))
}

// UpdateOrderStatus handles PATCH /orders/{documentId}/status
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderStatus string `json:"orderStatus"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "failed to update order")
		return
	}
	updated, err := h.deps.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "documentId"), req.OrderStatus)
	if err != nil {
		h.fail(w, r, err, "failed to update order")
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"data": updated})
}

// UpdateOrderPayment handles PATCH /orders/{documentId}/payment. A payment
// proof may come as the "document" file of a multipart form.
func (h *Handler) UpdateOrderPayment(w http.ResponseWriter, r *http.Request) {
	fields, proof, ok := h.readForm(w, r, "document")
	if !ok {
		return
	}
	status, _ := fields["paymentStatus"].(string)
	updated, err := h.deps.Orders.UpdatePayment(r.Context(), chi.URLParam(r, "documentId"), status, proof)
	if err != nil {
		h.fail(w, r, err, "failed to update payment")
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"data": updated})
}

// DeleteOrder handles DELETE /orders/{documentId}
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	h.deleteRecord(w, r, domain.CollectionOrders, chi.URLParam(r, "documentId"))
}
