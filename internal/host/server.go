// Package host exposes a running controller over HTTP: commands as JSON
// endpoints and events as a server-sent event stream.
package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/andresmejia3/facegate/internal/descriptor"
	"github.com/andresmejia3/facegate/internal/logger"
	"github.com/andresmejia3/facegate/internal/session"
	"github.com/andresmejia3/facegate/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Controller is the command surface of session.Controller.
type Controller interface {
	SetMode(session.Mode)
	SetTemplate(descriptor.Descriptor) error
	ClearTemplate()
	Status() session.Status
}

// TemplateLoader reads persisted templates. *store.Store satisfies it.
type TemplateLoader interface {
	GetTemplate(ctx context.Context, name string) (store.Template, error)
}

type Server struct {
	ctrl      Controller
	hub       *Hub
	templates TemplateLoader
	validate  *validator.Validate
	router    *chi.Mux
}

// NewServer wires the routes. templates may be nil when no database is
// configured; template loading then answers 503.
func NewServer(ctrl Controller, hub *Hub, templates TemplateLoader) *Server {
	s := &Server{
		ctrl:      ctrl,
		hub:       hub,
		templates: templates,
		validate:  validator.New(),
		router:    chi.NewRouter(),
	}

	r := s.router
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Get("/status", s.handleStatus)
		r.Put("/mode", s.handleSetMode)
		r.Put("/descriptor", s.handleSetDescriptor)
		r.Delete("/descriptor", s.handleClearDescriptor)
		r.Post("/templates/{name}", s.handleLoadTemplate)
	})
	return s
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No write timeout: event streams stay open.
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("host listening", logger.Options{Key: "addr", Data: addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("request",
			logger.Options{Key: "method", Data: r.Method},
			logger.Options{Key: "path", Data: r.URL.Path},
			logger.Options{Key: "status", Data: ww.Status()},
			logger.Options{Key: "duration", Data: time.Since(start)},
			logger.Options{Key: "request_id", Data: chiMiddleware.GetReqID(r.Context())},
		)
	})
}
