package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwrk-planet/realtime-service/internal/metrics"
	httpmw "github.com/cwrk-planet/realtime-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/realtime-service/internal/transport/ws"
)

type Deps struct {
	Handler        *Handler
	WS             *ws.Server
	Auth           httpmw.Authenticator
	InternalToken  string
	AllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(metrics.HTTP)
	r.Use(httpmw.RequestLogger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WS endpoints: токен в query, таймаут запроса к ним не применяется
	r.Get("/ws/chat/{userID}", d.WS.HandleChat)
	r.Get("/ws/notifications", d.WS.HandleNotifications)

	h := d.Handler

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware(d.Auth))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Get("/chats", h.ListChats)
		pr.Route("/chats/{userID}", func(cr chi.Router) {
			cr.Get("/messages", h.History)
			cr.Post("/messages", h.SendMessage)
			cr.Post("/read", h.MarkRead)
		})
		pr.Get("/users/{userID}/presence", h.GetPresence)
	})

	// вход для внутренних продюсеров уведомлений
	r.Route("/internal", func(ir chi.Router) {
		ir.Use(httpmw.InternalTokenMiddleware(d.InternalToken))
		ir.Use(middlewareChi.Timeout(10 * time.Second))

		ir.Post("/users/{userID}/notifications", h.DeliverNotification)
		ir.Delete("/users/{userID}/notifications/{notificationID}", h.RetractNotification)
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
