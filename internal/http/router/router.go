package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"attendance-session-service/internal/http/handler"
	"attendance-session-service/internal/http/middleware"
	"attendance-session-service/internal/http/response"
	"attendance-session-service/internal/security"
)

type Dependencies struct {
	AttendanceHandler   *handler.AttendanceHandler
	JWTManager          *security.JWTManager
	APIRateLimitRPM     int
	CheckInRateLimitRPM int
	EnableOTelHTTP      bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api").Middleware())

	checkInLimiter := middleware.NewRateLimiter(dep.CheckInRateLimitRPM, time.Minute, "checkin").Middleware()

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/attendances", func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(dep.JWTManager))
			r.Post("/", dep.AttendanceHandler.Create)
			r.Get("/", dep.AttendanceHandler.List)
			r.Get("/statistics", dep.AttendanceHandler.Statistics)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", dep.AttendanceHandler.Get)
				r.With(checkInLimiter).Post("/checkin", dep.AttendanceHandler.CheckIn)
				r.Put("/close", dep.AttendanceHandler.Close)
				r.Put("/records/{student_id}", dep.AttendanceHandler.OverrideRecord)
				r.Get("/qrcode", dep.AttendanceHandler.RotateQRCode)
			})
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
