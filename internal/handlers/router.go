package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/listview"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/middleware"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/pagination"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/query"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/session"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/upload"
	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/usecases"
)

const defaultMaxMemory = 32 << 20

// Deps are the services the HTTP layer calls
type Deps struct {
	Query      *query.Client
	Records    *usecases.RecordUsecase
	Catalog    *usecases.CatalogUsecase
	Orders     *usecases.OrderUsecase
	Membership *usecases.MembershipUsecase
	Home       *usecases.HomeUsecase
	Dashboard  *usecases.DashboardUsecase
	Auth       *usecases.AuthUsecase
	Uploads    *upload.Helper
	Sessions   *session.Store
	Previews   *listview.Previewer // optional
}

// Options tune the router
type Options struct {
	Pagination     pagination.Options
	RequestTimeout time.Duration
	RateLimit      int // requests per client per RateWindow, 0 disables
	RateWindow     time.Duration
	CSRFKey        []byte // nil disables CSRF checks
	SecureCookies  bool
	TrustedOrigins []string
	MaxMemory      int64 // multipart bytes kept in memory
}

// Handler serves the dashboard API
type Handler struct {
	responder
	deps      Deps
	pageOpts  pagination.Options
	maxMemory int64
}

// NewHandler creates the API handler
func NewHandler(deps Deps, opts Options, logger *zap.Logger) *Handler {
	maxMemory := opts.MaxMemory
	if maxMemory <= 0 {
		maxMemory = defaultMaxMemory
	}
	return &Handler{
		responder: responder{logger: logger},
		deps:      deps,
		pageOpts:  opts.Pagination,
		maxMemory: maxMemory,
	}
}

// NewRouter mounts the API under /api/v1. /health is left to the caller so
// it can answer without any middleware.
func NewRouter(deps Deps, opts Options, logger *zap.Logger) *chi.Mux {
	h := NewHandler(deps, opts, logger)
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(deps.Sessions))
		r.Use(middleware.LoggingMiddleware(logger))
		r.Use(middleware.RecoveryMiddleware(logger))
		if opts.RequestTimeout > 0 {
			r.Use(middleware.TimeoutMiddleware(opts.RequestTimeout))
		}
		if opts.RateLimit > 0 {
			window := opts.RateWindow
			if window <= 0 {
				window = time.Minute
			}
			r.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(opts.RateLimit, window), logger))
		}
		r.Use(middleware.SecurityHeaders)
		if opts.CSRFKey != nil {
			r.Use(middleware.CSRF(opts.CSRFKey, opts.SecureCookies, opts.TrustedOrigins))
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				r.Post("/otp/send", h.SendOTP)
				r.Post("/otp/verify", h.VerifyOTP)
				r.Post("/logout", h.Logout)
				r.Get("/csrf", h.CSRFToken)
				r.With(middleware.RequireSession).Get("/me", h.Me)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSession)
				h.mountResources(r)
			})
		})
	})

	return r
}

func (h *Handler) mountResources(r chi.Router) {
	r.Route("/collections/{collection}", func(r chi.Router) {
		r.Get("/", h.ListCollection)
		r.Get("/{documentId}", h.GetCollectionRecord)
		r.Delete("/{documentId}", h.DeleteCollectionRecord)
	})

	r.Route("/coupons", func(r chi.Router) {
		r.Get("/", h.ListCoupons)
		r.Post("/", h.CreateCoupon)
		r.Get("/generate-code", h.GenerateCouponCode)
		r.Put("/{documentId}", h.UpdateCoupon)
		r.Delete("/{documentId}", h.DeleteCoupon)
	})

	r.Route("/plans", func(r chi.Router) {
		r.Get("/", h.ListPlans)
		r.Post("/", h.CreatePlan)
		r.Put("/{documentId}", h.UpdatePlan)
		r.Delete("/{documentId}", h.DeletePlan)
	})

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.ListCategories)
		r.Post("/", h.CreateCategory)
		r.Put("/{documentId}", h.UpdateCategory)
		r.Delete("/{documentId}", h.DeleteCategory)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{documentId}", h.GetProduct)
		r.Put("/{documentId}", h.UpdateProduct)
		r.Delete("/{documentId}", h.DeleteProduct)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/{documentId}", h.GetOrder)
		r.Patch("/{documentId}/status", h.UpdateOrderStatus)
		r.Patch("/{documentId}/payment", h.UpdateOrderPayment)
		r.Delete("/{documentId}", h.DeleteOrder)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
		r.Get("/{id}", h.GetUser) // documentId
		r.Put("/{id}", h.UpdateUser)
		r.Delete("/{id}", h.DeleteUser)
		r.Post("/{id}/subscriptions", h.AddSubscription)
		r.Post("/{id}/subscriptions/{subscriptionId}/payments", h.AddPayment)
	})

	r.Get("/subscriptions", h.ListSubscriptions)

	r.Route("/home", func(r chi.Router) {
		r.Get("/", h.GetHome)
		r.Put("/{section}", h.SaveHomeSection)
		r.Post("/{section}/images", h.UploadHomeImages)
	})

	r.Get("/analytics/dashboard", h.Analytics)
	r.Post("/uploads", h.Upload)
}
