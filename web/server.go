// ABOUTME: HTTP server receiving CRM webhooks and answering connection checks
// ABOUTME: Deliveries are verified, split, normalized, stored and folded into sync states
package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
)

// maxWebhookBody caps a single delivery.
const maxWebhookBody = 1 << 20

// ClientFactory returns a client for the organization's connection to
// provider. It wraps db.ErrNotFound when no connection exists.
type ClientFactory func(ctx context.Context, orgID string, provider models.Provider) (crm.Client, error)

type Server struct {
	db      *sql.DB
	clients ClientFactory
	logger  *zap.Logger
	router  *mux.Router
}

// WebhookResult is the response body of a webhook delivery.
type WebhookResult struct {
	Received      int `json:"received"`
	Duplicates    int `json:"duplicates"`
	Rejected      int `json:"rejected"`
	StatesUpdated int `json:"states_updated"`
}

func NewServer(database *sql.DB, clients ClientFactory, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		db:      database,
		clients: clients,
		logger:  logger,
		router:  mux.NewRouter(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/webhooks/{provider}/{org}", s.handleWebhook).Methods(http.MethodPost)
	s.router.HandleFunc("/connections/{provider}/{org}/status", s.handleStatus).Methods(http.MethodGet)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down webhook server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider, orgID, ok := s.route(w, r)
	if !ok {
		return
	}
	logger := s.logger.With(zap.String("provider", string(provider)), zap.String("org", orgID))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "webhook body too large")
		return
	}

	client, ok := s.client(w, r, orgID, provider)
	if !ok {
		return
	}
	defer client.Close()

	if verifier, ok := client.(crm.WebhookVerifier); ok {
		if err := verifier.VerifyWebhook(r.Header, r.Method, requestURL(r), body); err != nil {
			logger.Warn("webhook rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid webhook signature")
			return
		}
	}

	parts, err := crm.SplitWebhookBatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var result WebhookResult
	for _, part := range parts {
		event, err := client.HandleWebhook(ctx, part)
		if err != nil {
			result.Rejected++
			logger.Warn("webhook event rejected", zap.Error(err))
			continue
		}
		result.Received++

		inserted, n, err := db.RecordWebhookEvent(s.db, orgID, event)
		if err != nil {
			logger.Error("failed to record webhook event",
				zap.String("event_id", event.ID), zap.String("record_id", event.ObjectID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to record webhook event")
			return
		}
		if !inserted {
			result.Duplicates++
			continue
		}
		result.StatesUpdated += n
	}

	if result.Received == 0 {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}

	logger.Info("webhook processed",
		zap.Int("received", result.Received),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("rejected", result.Rejected),
		zap.Int("states_updated", result.StatesUpdated))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	provider, orgID, ok := s.route(w, r)
	if !ok {
		return
	}

	client, ok := s.client(w, r, orgID, provider)
	if !ok {
		return
	}
	defer client.Close()

	status := client.ValidateConnection(r.Context())
	if err := db.UpdateConnectionStatus(s.db, orgID, status); err != nil && !errors.Is(err, db.ErrNotFound) {
		s.logger.Error("failed to record connection status", zap.String("provider", string(provider)), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) (models.Provider, string, bool) {
	vars := mux.Vars(r)
	provider := models.ParseProvider(vars["provider"])
	if !provider.Valid() {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown provider %q", vars["provider"]))
		return "", "", false
	}
	return provider, vars["org"], true
}

func (s *Server) client(w http.ResponseWriter, r *http.Request, orgID string, provider models.Provider) (crm.Client, bool) {
	client, err := s.clients(r.Context(), orgID, provider)
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "no connection for "+string(provider))
		return nil, false
	case err != nil:
		s.logger.Error("failed to create client", zap.String("provider", string(provider)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create client")
		return nil, false
	}
	return client, true
}

// requestURL rebuilds the URL the provider signed, honoring a TLS-terminating proxy.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
