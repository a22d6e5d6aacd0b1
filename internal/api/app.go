package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/jdelgado/go-helpdesk/internal/config"
	"github.com/jdelgado/go-helpdesk/internal/database"
	"github.com/jdelgado/go-helpdesk/internal/realtime"
)

type HelpdeskApp struct {
	log            *log.Logger
	db             database.HelpdeskRepository
	mux            *http.Server
	hub            *realtime.Hub
	gateway        *realtime.Gateway
	signingKey     []byte
	allowedOrigins []string
}

func NewHelpdeskApp(mux *http.ServeMux, logger *log.Logger, hub *realtime.Hub, gw *realtime.Gateway,
	db database.HelpdeskRepository, cfg *config.Config) *HelpdeskApp {
	s := &HelpdeskApp{
		log:            logger,
		db:             db,
		hub:            hub,
		gateway:        gw,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("POST /api/conversations", s.authMiddleware(s.createConversation))
	mux.Handle("GET /api/conversations", s.authMiddleware(s.listConversations))
	mux.Handle("GET /api/conversations/{id}", s.authMiddleware(s.getConversation))
	mux.Handle("GET /api/conversations/{id}/messages", s.authMiddleware(s.getConversationMessages))
	mux.Handle("POST /api/conversations/{id}/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("POST /api/conversations/{id}/read", s.authMiddleware(s.markConversationRead))
	mux.Handle("POST /api/conversations/{id}/assign", s.authMiddleware(s.assignConversation))
	mux.Handle("POST /api/conversations/{id}/close", s.authMiddleware(s.closeConversation))
	mux.Handle("POST /api/conversations/{id}/reopen", s.authMiddleware(s.reopenConversation))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *HelpdeskApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *HelpdeskApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
