package controller

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/phishdrill-backend/internal/handler"
	"github.com/unclebandit/phishdrill-backend/internal/pkg/httputil"
)

// API groups the operator console controllers.
type API struct {
	Campaigns *CampaignController
	Allowlist *AllowlistController
	Templates *TemplateController
}

type RouterOptions struct {
	AdminOrigin        string
	RateLimitPerMinute int
	Log                logrus.FieldLogger
}

// SetupRoutes builds the full router: the rate-limited operator API under
// /api, the recipient-facing tracking routes and /healthz.
func SetupRoutes(api *API, tracking *handler.TrackingHandler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestLogger(opts.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(opts.AdminOrigin),
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/healthz", Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(httputil.NewRateLimiter(opts.RateLimitPerMinute).Middleware)

		r.Get("/templates", api.Templates.ListTemplates)

		r.Get("/allowlist", api.Allowlist.List)
		r.Post("/allowlist", api.Allowlist.Upsert)
		r.Post("/allowlist/upload", api.Allowlist.Upload)

		r.Get("/campaigns", api.Campaigns.ListCampaigns)
		r.Post("/campaigns", api.Campaigns.CreateCampaign)
		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Get("/", api.Campaigns.GetCampaignDetails)
			r.Put("/", api.Campaigns.UpdateCampaign)
			r.Post("/approve", api.Campaigns.ApproveCampaign)
			r.Post("/send", api.Campaigns.SendCampaign)
			r.Get("/targets", api.Campaigns.ListTargets)
			r.Get("/analytics", api.Campaigns.Analytics)
			r.Get("/export", api.Campaigns.ExportResults)
		})
	})

	// Tracking sits outside the rate limit and always answers.
	tracking.Mount(r)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, http.StatusNotFound, "not found")
	})
	return r
}

// allowedOrigins splits a comma separated ADMIN_ORIGIN value.
func allowedOrigins(v string) []string {
	var out []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
