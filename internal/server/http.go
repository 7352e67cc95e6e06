package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/odsearch/internal/auth"
	"github.com/coffersTech/odsearch/internal/engine"
	"github.com/coffersTech/odsearch/internal/pkg/search"
	"github.com/coffersTech/odsearch/internal/queryoption"
)

const (
	maxBodyBytes    = 8 << 20
	requestIDHeader = "X-Request-ID"
)

// Options tunes request handling.
type Options struct {
	MaxSearchLength int // bytes, 0 = unlimited
	DefaultTop      int // $top when absent, 0 = unlimited
}

type Server struct {
	queryEngine *engine.QueryEngine
	keyStore    *auth.KeyStore // nil disables authentication
	opts        Options
	srv         *http.Server
	parser      fastjson.ParserPool
}

func NewServer(qe *engine.QueryEngine, ks *auth.KeyStore, opts Options) *Server {
	return &Server{
		queryEngine: qe,
		keyStore:    ks,
		opts:        opts,
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/api/entities", s.protect(http.HandlerFunc(s.handleEntities)))
	mux.Handle("/api/search/parse", s.protect(http.HandlerFunc(s.handleParse)))
	mux.Handle("/api/facets", s.protect(http.HandlerFunc(s.handleFacets)))
	mux.Handle("/api/stats", s.protect(http.HandlerFunc(s.handleStats)))

	return requestIDMiddleware(mux)
}

// Start runs the HTTP server.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("HTTP server listening", "addr", addr, "auth", s.keyStore != nil)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) protect(next http.Handler) http.Handler {
	if s.keyStore == nil {
		return next
	}
	return s.AuthMiddleware(next)
}

// AuthMiddleware checks for a valid API key in the Authorization header.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="odsearch"`)
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}

		key, ok := s.keyStore.Verify(token)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="odsearch"`)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		slog.Debug("authenticated", "key", key.Name, "request_id", r.Header.Get(requestIDHeader))
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags every request with an ID, reusing one sent by the client.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request", "method", r.Method, "path", r.URL.Path,
			"request_id", id, "duration", time.Since(start))
	})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleSearch(w, r)
	case http.MethodPost:
		s.handleIngest(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSearch processes GET /api/entities?$search=...&$top=&$skip=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	opt, err := queryoption.FromQuery(values, s.opts.MaxSearchLength)
	if err != nil {
		queryoption.WriteError(w, err)
		return
	}
	paging, err := queryoption.ParsePaging(values, s.opts.DefaultTop)
	if err != nil {
		queryoption.WriteError(w, err)
		return
	}

	rows, err := s.queryEngine.Search(opt.Root(), paging.Top, paging.Skip)
	if err != nil {
		slog.Error("search failed", "error", err, "request_id", r.Header.Get(requestIDHeader))
		queryoption.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

// handleIngest processes POST requests with one JSON entity or an array of them.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusRequestEntityTooLarge)
		return
	}
	defer r.Body.Close()

	// Parse
	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	// Handle batch (Array) or single (Object)
	var items []*fastjson.Value
	if v.Type() == fastjson.TypeArray {
		items, _ = v.Array()
	} else {
		items = []*fastjson.Value{v}
	}

	entities := make([]engine.Entity, 0, len(items))
	for i, val := range items {
		e, err := entityFromJSON(val)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid entity at index %d: %v", i, err), http.StatusBadRequest)
			return
		}
		entities = append(entities, e)
	}

	// All or nothing: a failed batch leaves no entity behind, so a retry is safe
	created, err := s.queryEngine.IngestBatch(entities)
	if err != nil {
		slog.Error("ingest failed", "error", err, "count", len(entities), "request_id", r.Header.Get(requestIDHeader))
		queryoption.WriteError(w, fmt.Errorf("no entities were stored: %w", err))
		return
	}

	// Sync WAL to disk once per request
	if err := s.queryEngine.SyncWAL(); err != nil {
		slog.Error("WAL sync failed", "error", err)
	}

	writeJSON(w, http.StatusCreated, created)
}

func entityFromJSON(val *fastjson.Value) (engine.Entity, error) {
	if val.Type() != fastjson.TypeObject {
		return engine.Entity{}, fmt.Errorf("expected object, got %s", val.Type())
	}

	e := engine.Entity{
		ID:          string(val.GetStringBytes("id")),
		Name:        string(val.GetStringBytes("name")),
		Description: string(val.GetStringBytes("description")),
		Category:    string(val.GetStringBytes("category")),
		CreatedAt:   val.GetInt64("created_at"),
	}
	if e.Name == "" {
		return e, fmt.Errorf("name is required")
	}
	return e, nil
}

type parseResponse struct {
	Search     string   `json:"search"`
	Expression string   `json:"expression"`
	Terms      []string `json:"terms"`
}

// handleParse reports how a $search expression is understood without executing it.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	opt, err := queryoption.FromQuery(r.URL.Query(), s.opts.MaxSearchLength)
	if err == nil && opt == nil {
		// Absent option parses as empty input and reports why
		opt, err = queryoption.ParseSearch("", s.opts.MaxSearchLength)
	}
	if err != nil {
		queryoption.WriteError(w, err)
		return
	}

	terms := search.Terms(opt.Root())
	if terms == nil {
		terms = []string{}
	}
	writeJSON(w, http.StatusOK, parseResponse{
		Search:     opt.Text,
		Expression: opt.Expression.String(),
		Terms:      terms,
	})
}

func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	opt, err := queryoption.FromQuery(r.URL.Query(), s.opts.MaxSearchLength)
	if err != nil {
		queryoption.WriteError(w, err)
		return
	}

	buckets, err := s.queryEngine.Facets(opt.Root())
	if err != nil {
		queryoption.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

// handleStats calculates system statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.queryEngine.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("JSON encode error", "error", err)
	}
}
