package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/marchespei/marchespei-api/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(auth *handlers.AuthHandler, digest *handlers.DigestHandler, prefs *handlers.PreferenceHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Scheduler endpoints, authenticated by the shared cron secret
	router.HandleFunc("/api/notifications/dispatch", digest.RunScheduled).Methods(http.MethodPost)
	router.HandleFunc("/api/notifications/enqueue", digest.Enqueue).Methods(http.MethodPost)

	// User endpoints behind the bearer session token
	api := router.PathPrefix("/api/notifications").Subrouter()
	api.Use(auth.JWTMiddleware)
	api.HandleFunc("/test", digest.SendTest).Methods(http.MethodPost)
	api.HandleFunc("/history", digest.History).Methods(http.MethodGet)
	api.HandleFunc("/preferences", prefs.Get).Methods(http.MethodGet)
	api.HandleFunc("/preferences", prefs.Update).Methods(http.MethodPut)

	return router
}
