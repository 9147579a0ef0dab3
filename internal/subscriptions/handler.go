package subscriptions

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/bissquit/subscription-garden/internal/domain"
	"github.com/bissquit/subscription-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrInvalidEmail, Status: http.StatusBadRequest, Message: "invalid email address"},
	{Error: ErrInvalidCategory, Status: http.StatusBadRequest},
	{Error: ErrAlreadySubscribed, Status: http.StatusBadRequest, Message: "user already subscribed to the category"},
	{Error: ErrAlreadyUnsubscribed, Status: http.StatusBadRequest, Message: "user already unsubscribed from the category"},
	{Error: ErrNeverSubscribed, Status: http.StatusBadRequest, Message: "no user subscribed to the category"},
	{Error: ErrNotSubscribed, Status: http.StatusNotFound, Message: "subscription not found"},
}

// Handler handles HTTP requests for the subscriptions module.
type Handler struct {
	service *Service
}

// NewHandler creates a new subscriptions handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers state-changing routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/subscribe", h.Subscribe)
	r.Delete("/unsubscribe", h.Unsubscribe)
}

// RegisterPublicRoutes registers read-only routes.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/categories", h.ListCategories)
	r.Get("/subscriptions", h.GetSubscriptions)
}

// SubscriptionRequest is the body of subscribe and unsubscribe requests.
type SubscriptionRequest struct {
	Email    string `json:"email"`
	Category string `json:"category"`
}

// Subscribe handles POST /subscribe.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	sub, err := h.service.Subscribe(r.Context(), req.Email, domain.Category(req.Category))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sub)
}

// Unsubscribe handles DELETE /unsubscribe.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	sub, err := h.service.Unsubscribe(r.Context(), req.Email, domain.Category(req.Category))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sub)
}

// ListCategories handles GET /categories.
func (h *Handler) ListCategories(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.service.Categories())
}

// GetSubscriptions handles GET /subscriptions?email=...&history=true.
func (h *Handler) GetSubscriptions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	includeHistory := false
	if raw := query.Get("history"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "history must be a boolean")
			return
		}
		includeHistory = v
	}

	subs, err := h.service.Status(r.Context(), query.Get("email"), includeHistory)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, subs)
}
