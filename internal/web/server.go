package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/vadiminshakov/liqmon/internal/domain"
	"golang.org/x/crypto/acme/autocert"
)

const sseHeartbeatInterval = 30 * time.Second

type scanReader interface {
	Opportunities() []domain.LiquidationOpportunity
	Opportunity(id string) (domain.LiquidationOpportunity, bool)
	Borrowers() []domain.Borrower
	SubscribeOpportunities(fn func([]domain.LiquidationOpportunity)) func()
	SubscribeBorrowers(fn func([]domain.Borrower)) func()
	TriggerScan()
}

type executionService interface {
	Execute(ctx context.Context, opp domain.LiquidationOpportunity) (domain.ExecutionRecord, error)
}

type historyReader interface {
	Records() []domain.ExecutionRecord
}

// Server exposes the monitor to the UI layer: SSE streams for
// opportunities and borrowers, a JSON execution endpoint and the
// execution history.
type Server struct {
	Addr     string
	Scanner  scanReader
	Executor executionService
	History  historyReader
}

// NewServer creates a new web server instance.
func NewServer(addr string, scanner scanReader, executor executionService, history historyReader) *Server {
	return &Server{Addr: addr, Scanner: scanner, Executor: executor, History: history}
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/opportunities", s.handleOpportunities)
	mux.HandleFunc("/opportunities/stream", s.handleOpportunityStream)
	mux.HandleFunc("/borrowers", s.handleBorrowers)
	mux.HandleFunc("/borrowers/stream", s.handleBorrowerStream)
	mux.HandleFunc("/executions", s.handleExecutions)
	mux.HandleFunc("/scan", s.handleScan)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic certificates
// via ACME, plus an HTTP server on port 80 for HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.mux(),
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig: &tls.Config{
			GetCertificate: manager.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		},
	}

	challengeServer := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := challengeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("acme challenge server: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		_ = challengeServer.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.Scanner.Opportunities())
}

func (s *Server) handleBorrowers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.Scanner.Borrowers())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.Scanner.TriggerScan()
	w.WriteHeader(http.StatusAccepted)
}

type executeRequest struct {
	OpportunityID string `json:"opportunity_id"`
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.History.Records())
	case http.MethodPost:
		s.handleExecute(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OpportunityID == "" {
		http.Error(w, "opportunity_id is required", http.StatusBadRequest)
		return
	}

	opp, ok := s.Scanner.Opportunity(req.OpportunityID)
	if !ok {
		http.Error(w, "opportunity not found (the list may have been replaced by a newer scan)", http.StatusNotFound)
		return
	}

	record, err := s.Executor.Execute(r.Context(), opp)
	if err != nil {
		var dup *domain.DuplicateExecutionError
		if errors.As(err, &dup) {
			http.Error(w, dup.Error(), http.StatusConflict)
			return
		}
		// a failed execution still produced a record; return it
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		writeJSONBody(w, record)
		return
	}
	writeJSON(w, record)
}

func (s *Server) handleOpportunityStream(w http.ResponseWriter, r *http.Request) {
	streamSSE(w, r, "opportunities", s.Scanner.Opportunities,
		func(fn func([]domain.LiquidationOpportunity)) func() {
			return s.Scanner.SubscribeOpportunities(fn)
		})
}

func (s *Server) handleBorrowerStream(w http.ResponseWriter, r *http.Request) {
	streamSSE(w, r, "borrowers", s.Scanner.Borrowers,
		func(fn func([]domain.Borrower)) func() {
			return s.Scanner.SubscribeBorrowers(fn)
		})
}

// streamSSE pushes the current list immediately, then every published
// update. Slow clients are allowed to miss intermediate updates; each
// event carries the full list, so the latest one is always complete.
func streamSSE[T any](w http.ResponseWriter, r *http.Request, event string, current func() []T, subscribe func(func([]T)) func()) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := make(chan []T, 1)
	unsubscribe := subscribe(func(list []T) {
		// keep only the newest pending update
		select {
		case updates <- list:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- list:
			default:
			}
		}
	})
	defer unsubscribe()

	send := func(list []T) bool {
		payload, err := json.Marshal(list)
		if err != nil {
			log.Printf("%s stream marshal: %v", event, err)
			return false
		}
		fmt.Fprintf(w, "event: %s\n", event)
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return true
	}

	if !send(current()) {
		return
	}

	// comment heartbeat so proxies keep the connection
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case list := <-updates:
			if !send(list) {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	writeJSONBody(w, v)
}

func writeJSONBody(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
