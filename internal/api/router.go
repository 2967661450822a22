/**
 * @description
 * This file sets up the HTTP router for the savings-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SavingsRoutes creates and returns the router for the savings service.
func SavingsRoutes(h *SavingsHandlers, webhook *WebhookHandler, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Gateway-facing endpoints carry their own verification: the webhook
		// validates its HMAC signature and verify is reference-scoped for
		// checkout callback pages.
		r.Method(http.MethodPost, "/payments/webhook/paystack", webhook)
		r.Get("/savings/verify/{reference}", h.VerifyPaymentHandler)

		// Group routes that require authentication.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(jwtSecret))

			r.Route("/savings", func(r chi.Router) {
				r.Post("/daily", h.CreateDailyPlanHandler)
				r.Post("/target", h.CreateTargetPlanHandler)
				r.Post("/target/calculate", h.CalculateTargetHandler)
				r.Put("/{planID}", h.UpdatePlanHandler)
				r.Delete("/{planID}", h.DeletePlanHandler)
				r.Post("/extend", h.ExtendPlanHandler)

				r.Get("/{trackingNumber}/markings", h.ListMarkingsHandler)
				r.Get("/{trackingNumber}/payout", h.GetPayoutHandler)
				r.Get("/metrics", h.GetMetricsHandler)
				r.Get("/summary/monthly", h.GetMonthlySummaryHandler)
				r.Get("/payouts/unpaid", h.ListUnpaidPayoutsHandler)

				r.Post("/{trackingNumber}/mark", h.MarkSingleHandler)
				r.Post("/mark/bulk", h.MarkBulkHandler)
				r.Post("/confirm/{reference}", h.ConfirmBankTransferHandler)
				r.Post("/{trackingNumber}/end", h.EndPlanHandler)
			})
		})
	})

	return r
}
