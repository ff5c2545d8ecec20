package service

import (
	"rewear/internal/app"
	"rewear/internal/pkg/auth"
	"rewear/internal/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// Service encapsulates the HTTP server configuration, including the application's business logic,
// HTTP handlers, the server's run address, and a logger for event and error logging.
type Service struct {
	handlers   *handlers
	app        *app.App
	runAddress string
	log        *logger.Logger
}

// NewService creates and initializes a new Service instance.
// It sets up the handlers using the provided application and logger,
// and configures the server's run address.
func NewService(app *app.App, runAddress string, l *logger.Logger) *Service {
	handlers := newHandlers(app, l)
	return &Service{handlers: handlers, app: app, runAddress: runAddress, log: l}
}

// NewRouter sets up and returns a new chi.Router instance with the necessary middleware and routes.
// It applies logging middleware globally, JWT authentication middleware for protected routes,
// and an additional admin guard for moderation routes.
func (service *Service) NewRouter() chi.Router {
	router := chi.NewRouter()
	router.Use(service.log.WithLogging())
	router.Post("/api/auth", service.handlers.authHandler)
	router.Route("/", func(r chi.Router) {
		r.Use(auth.CheckJWTMiddleware())

		r.Get("/api/info", service.handlers.infoHandler)

		r.Post("/api/items", service.handlers.createItemHandler)
		r.Get("/api/items", service.handlers.listItemsHandler)
		r.Get("/api/items/{id}", service.handlers.getItemHandler)
		r.Put("/api/items/{id}", service.handlers.updateItemHandler)
		r.Delete("/api/items/{id}", service.handlers.deleteItemHandler)

		r.Get("/api/swaps", service.handlers.listSwapsHandler)
		r.Post("/api/swaps/request", service.handlers.requestSwapHandler)
		r.Put("/api/swaps/{id}/accept", service.handlers.acceptSwapHandler)
		r.Put("/api/swaps/{id}/reject", service.handlers.rejectSwapHandler)
		r.Put("/api/swaps/{id}/complete", service.handlers.completeSwapHandler)

		r.Post("/api/points/redeem", service.handlers.redeemHandler)

		r.Get("/api/orders", service.handlers.listOrdersHandler)
		r.Get("/api/orders/{id}/codes", service.handlers.orderCodesHandler)
		r.Put("/api/orders/{id}/complete", service.handlers.completeOrderHandler)
		r.Put("/api/orders/{id}/cancel", service.handlers.cancelOrderHandler)

		r.Route("/api/admin", func(ar chi.Router) {
			ar.Use(auth.CheckAdminMiddleware())
			ar.Put("/items/{id}/approve", service.handlers.approveItemHandler)
			ar.Get("/orders", service.handlers.adminOrdersHandler)
			ar.Delete("/users/{id}", service.handlers.deleteUserHandler)
		})
	})
	return router
}
