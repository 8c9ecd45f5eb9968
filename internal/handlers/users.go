package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/usecases"
)

// userID reads the numeric id the users plugin is addressed by
func userID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

// ListUsers handles GET /users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, listDefs["users"])
}

// GetUser handles GET /users/{documentId} with subscriptions, plans and
// invoices populated
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.deps.Membership.UserByDocumentID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "failed to load user")
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"data": user})
}

// CreateUser handles POST /users. Multipart with an optional "profile"
// file, or JSON.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	fields, avatar, ok := h.readForm(w, r, "profile")
	if !ok {
		return
	}
	in := usecases.UserInput{
		Firstname: stringField(fields, "firstname"),
		Lastname:  stringField(fields, "lastname"),
		Email:     stringField(fields, "email"),
		Phone:     stringField(fields, "phone"),
		Type:      stringField(fields, "type"),
	}
	in.IsGymMember, _ = fields["isGymMember"].(bool)

	created, err := h.deps.Membership.CreateUser(r.Context(), in, avatar)
	if err != nil {
		h.fail(w, r, err, "failed to create user")
		return
	}
	h.respondJSON(w, r, http.StatusCreated, map[string]interface{}{"data": created})
}

// UpdateUser handles PUT /users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.fail(w, r, err, "failed to update user")
		return
	}
	fields, avatar, ok := h.readForm(w, r, "profile")
	if !ok {
		return
	}
	updated, err := h.deps.Membership.UpdateUser(r.Context(), id, fields, avatar)
	if err != nil {
		h.fail(w, r, err, "failed to update user")
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"data": updated})
}

// DeleteUser handles DELETE /users/{id}?confirm=true
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.fail(w, r, err, "failed to delete user")
		return
	}
	if !confirmed(r) {
		h.respondError(w, r, http.StatusConflict, "delete must be confirmed")
		return
	}
	if err := h.deps.Membership.DeleteUser(r.Context(), id); err != nil {
		h.fail(w, r, err, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddSubscription handles POST /users/{id}/subscriptions
func (h *Handler) AddSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.fail(w, r, err, "failed to add subscription")
		return
	}
	var in usecases.SubscriptionInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err, "failed to add subscription")
		return
	}
	in.UserID = id

	created, err := h.deps.Membership.AddSubscription(r.Context(), in)
	if err != nil {
		h.fail(w, r, err, "failed to add subscription")
		return
	}
	h.respondJSON(w, r, http.StatusCreated, map[string]interface{}{"data": created})
}

// AddPayment handles POST /users/{id}/subscriptions/{subscriptionId}/payments
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.fail(w, r, err, "failed to add payment")
		return
	}
	var in usecases.PaymentInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err, "failed to add payment")
		return
	}
	in.UserID = id
	in.SubscriptionDocumentID = chi.URLParam(r, "subscriptionId")

	updated, err := h.deps.Membership.AddPayment(r.Context(), in)
	if err != nil {
		h.fail(w, r, err, "failed to add payment")
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"data": updated})
}

// ListSubscriptions handles GET /subscriptions (q, plan, status)
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, listDefs["subscriptions"])
}

func stringField(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}
