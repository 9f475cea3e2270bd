package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/tripware/tripchat/internal/auth"
	"github.com/tripware/tripchat/internal/config"
	"github.com/tripware/tripchat/internal/database"
	"github.com/tripware/tripchat/internal/server"
	"github.com/tripware/tripchat/internal/stats"
)

type TripChatApp struct {
	log            *log.Logger
	db             database.TripChatRepository
	srv            *http.Server
	cs             *server.ChatServer
	notifier       *server.Notifier
	verifier       *auth.Verifier
	stats          stats.StatsProvider
	allowedOrigins []string
}

func NewTripChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, notifier *server.Notifier,
	db database.TripChatRepository, su stats.StatsProvider, cfg *config.Config) *TripChatApp {
	s := &TripChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		notifier:       notifier,
		verifier:       auth.NewVerifier(cfg.SigningKey),
		stats:          su,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("GET /api/notifications", s.authMiddleware(s.listNotifications))
	mux.HandleFunc("POST /api/notifications", s.authMiddleware(s.createNotification))
	mux.HandleFunc("PUT /api/notifications/read", s.authMiddleware(s.setNotificationRead))
	mux.HandleFunc("POST /api/notifications/read-all", s.authMiddleware(s.markAllNotificationsRead))
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.srv = srv
	return s
}

func (s *TripChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *TripChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
