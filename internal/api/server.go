// Package api exposes the HTTP gateway: file lifecycle endpoints, language
// discovery, notifications, preferences and conversion history.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/image2doc/image2doc/internal/config"
	"github.com/image2doc/image2doc/internal/coordinator"
	"github.com/image2doc/image2doc/internal/history"
	"github.com/image2doc/image2doc/internal/notify"
	"github.com/image2doc/image2doc/internal/ocr"
	"github.com/image2doc/image2doc/internal/prefs"
	"github.com/image2doc/image2doc/internal/signing"
)

// Server wires the coordinator and its satellites into HTTP routes.
type Server struct {
	cfg     *config.Config
	coord   *coordinator.Coordinator
	backend *ocr.Client
	langs   *ocr.LanguageSource
	center  *notify.Center
	prefs   *prefs.Store
	signer  *signing.Signer
	// hist is nil when no database is configured; the history routes are
	// not registered in that case.
	hist *history.Repository
	log  zerolog.Logger

	server *http.Server
}

// New constructs a Server.
func New(cfg *config.Config, coord *coordinator.Coordinator, backend *ocr.Client, langs *ocr.LanguageSource,
	center *notify.Center, prefsStore *prefs.Store, signer *signing.Signer, hist *history.Repository, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		coord:   coord,
		backend: backend,
		langs:   langs,
		center:  center,
		prefs:   prefsStore,
		signer:  signer,
		hist:    hist,
		log:     log,
	}
}

// Router builds the chi router. It is exported so tests can drive the
// handlers through httptest without binding a port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/languages", s.handleLanguages)
		r.Get("/stats", s.handleStats)

		r.Route("/files", func(r chi.Router) {
			r.Post("/", s.handleUpload)
			r.Get("/", s.handleListFiles)
			r.Delete("/", s.handleClearFiles)
			r.Route("/{fileID}", func(r chi.Router) {
				r.Get("/", s.handleGetFile)
				r.Delete("/", s.handleRemoveFile)
				r.Post("/convert", s.handleConvert)
				r.Post("/cancel", s.handleCancel)
				r.Get("/download-url", s.handleDownloadURL)
				r.Get("/download", s.handleDownload)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleNotifications)
			r.Delete("/", s.handleClearNotifications)
			r.Delete("/{notificationID}", s.handleDismissNotification)
			r.Post("/{notificationID}/actions/{actionID}", s.handleNotificationAction)
		})

		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", s.handleGetPreferences)
			r.Put("/theme", s.handleSetTheme)
			r.Post("/searches", s.handleAddSearch)
			r.Delete("/searches", s.handleClearSearches)
		})

		if s.hist != nil {
			r.Get("/history", s.handleHistory)
		}
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("address", s.cfg.Address).Msg("gateway listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
