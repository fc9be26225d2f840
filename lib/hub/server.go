// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/clock"
	"github.com/bureau-foundation/lockbox/lib/codec"
	"github.com/bureau-foundation/lockbox/lib/envelope"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/hubstore"
	"github.com/bureau-foundation/lockbox/lib/netutil"
	"github.com/bureau-foundation/lockbox/lib/secret"
)

// DefaultMaxBlobSize bounds uploaded ciphertext: 256 MiB.
const DefaultMaxBlobSize int64 = 256 << 20

// maxMetadataSize bounds envelope, directory and index bodies.
const maxMetadataSize int64 = 1 << 20

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address is the TCP listen address (":8443", "127.0.0.1:0").
	Address string

	Store *hubstore.Store
	Blobs *cas.DirStore

	// TokenSecret verifies bearer tokens. The server borrows it; the
	// caller closes it after Serve returns.
	TokenSecret *secret.Buffer

	// MaxBlobSize defaults to DefaultMaxBlobSize.
	MaxBlobSize int64

	// ShutdownTimeout is how long Serve waits for in-flight requests
	// after ctx is cancelled. Defaults to 10 seconds.
	ShutdownTimeout time.Duration

	// Clock checks token expiry. Nil means the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Server serves the hub API. Serve blocks until its context is
// cancelled and in-flight requests drain.
type Server struct {
	address         string
	store           *hubstore.Store
	blobs           *cas.DirStore
	tokenSecret     *secret.Buffer
	maxBlobSize     int64
	shutdownTimeout time.Duration
	clock           clock.Clock
	logger          *slog.Logger

	// ready is closed once the listener is bound; addr is valid after.
	ready chan struct{}
	addr  net.Addr
}

// NewServer validates cfg and returns a Server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil || cfg.Blobs == nil {
		return nil, fmt.Errorf("hub: Store and Blobs are required")
	}
	if cfg.TokenSecret == nil || cfg.TokenSecret.Len() < 16 {
		return nil, fmt.Errorf("hub: TokenSecret of at least 16 bytes is required")
	}
	server := &Server{
		address:         cfg.Address,
		store:           cfg.Store,
		blobs:           cfg.Blobs,
		tokenSecret:     cfg.TokenSecret,
		maxBlobSize:     cfg.MaxBlobSize,
		shutdownTimeout: cfg.ShutdownTimeout,
		clock:           clock.OrReal(cfg.Clock),
		logger:          cfg.Logger,
		ready:           make(chan struct{}),
	}
	if server.maxBlobSize <= 0 {
		server.maxBlobSize = DefaultMaxBlobSize
	}
	if server.shutdownTimeout <= 0 {
		server.shutdownTimeout = 10 * time.Second
	}
	if server.logger == nil {
		server.logger = slog.New(slog.DiscardHandler)
	}
	return server, nil
}

// Ready is closed once the server is bound and accepting connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the resolved listen address. Only valid after Ready is
// closed.
func (s *Server) Addr() net.Addr { return s.addr }

// Handler returns the API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v1/directory/{identity}", s.authenticated(s.handlePublishKey))
	mux.HandleFunc("GET /v1/directory/{identity}", s.authenticated(s.handleLookupKey))
	mux.HandleFunc("POST /v1/blobs", s.authenticated(s.handlePutBlob))
	mux.HandleFunc("GET /v1/blobs/{address}", s.handleGetBlob)
	mux.HandleFunc("POST /v1/envelopes", s.authenticated(s.handlePublishEnvelope))
	mux.HandleFunc("GET /v1/envelopes/{address}", s.authenticated(s.handleFetchEnvelope))
	mux.HandleFunc("POST /v1/index", s.authenticated(s.handleIndex))
	mux.HandleFunc("GET /v1/index", s.authenticated(s.handleSearch))
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return s.logRequests(mux)
}

// Serve listens and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Blob uploads can be large; bound total time generously.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("hub listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("hub shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("hub shutdown error", "error", err)
		return fmt.Errorf("hub shutdown: %w", err)
	}
	s.logger.Info("hub stopped")
	return nil
}

type authenticatedHandler func(w http.ResponseWriter, r *http.Request, identity string)

// authenticated verifies the bearer token before calling next with
// the caller's identity.
func (s *Server) authenticated(next authenticatedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			s.writeError(w, r, failure.New(failure.Unauthenticated, "missing bearer token"))
			return
		}
		identity, err := VerifyToken(s.tokenSecret.Bytes(), token, s.clock.Now())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next(w, r, identity)
	}
}

func (s *Server) handlePublishKey(w http.ResponseWriter, r *http.Request, identity string) {
	target := r.PathValue("identity")
	if target != identity {
		s.writeError(w, r, failure.New(failure.AccessDenied, "%s may not publish a key for %s", identity, target))
		return
	}
	var entry DirectoryEntry
	if err := s.readCBOR(r, &entry); err != nil {
		s.writeError(w, r, err)
		return
	}
	if entry.Identity != "" && entry.Identity != target {
		s.writeError(w, r, failure.New(failure.Invalid, "body identity %q does not match path %q", entry.Identity, target))
		return
	}
	if err := s.store.Directory().Publish(r.Context(), target, entry.PublicKey); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLookupKey(w http.ResponseWriter, r *http.Request, _ string) {
	target := r.PathValue("identity")
	key, err := s.store.Directory().Lookup(r.Context(), target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCBOR(w, r, http.StatusOK, DirectoryEntry{Identity: target, PublicKey: key})
}

func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request, identity string) {
	data, err := netutil.ReadBlob(http.MaxBytesReader(w, r.Body, s.maxBlobSize), s.maxBlobSize)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeCBOR(w, r, http.StatusRequestEntityTooLarge, ErrorResponse{
				Kind:    failure.Invalid,
				Message: fmt.Sprintf("blob exceeds %d bytes", s.maxBlobSize),
			})
			return
		}
		s.writeError(w, r, failure.Wrap(failure.Invalid, err, "reading blob"))
		return
	}
	address, err := s.blobs.Put(data)
	if err != nil {
		s.writeError(w, r, failure.Wrap(failure.Internal, err, "storing blob"))
		return
	}
	s.logger.Info("blob stored", "address", address.String(), "size", len(data), "uploader", identity)
	s.writeCBOR(w, r, http.StatusCreated, BlobResponse{Address: address, Size: int64(len(data))})
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	address, err := cas.ParseAddress(r.PathValue("address"))
	if err != nil {
		s.writeError(w, r, failure.Wrap(failure.Invalid, err, "blob address"))
		return
	}
	data, err := s.blobs.Get(address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	// Content-addressed: the bytes at an address never change.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handlePublishEnvelope(w http.ResponseWriter, r *http.Request, identity string) {
	var env envelope.Envelope
	if err := s.readCBOR(r, &env); err != nil {
		s.writeError(w, r, err)
		return
	}
	if env.Sender != identity {
		s.writeError(w, r, failure.New(failure.AccessDenied, "%s may not publish an envelope sent by %s", identity, env.Sender))
		return
	}
	if !s.blobs.Has(env.Address) {
		s.writeError(w, r, failure.New(failure.Invalid, "ciphertext %s has not been uploaded", env.Address.Short()))
		return
	}
	if err := s.store.Metadata().Publish(r.Context(), &env); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleFetchEnvelope(w http.ResponseWriter, r *http.Request, identity string) {
	address, err := cas.ParseAddress(r.PathValue("address"))
	if err != nil {
		s.writeError(w, r, failure.Wrap(failure.Invalid, err, "envelope address"))
		return
	}
	env, err := s.store.Metadata().Fetch(r.Context(), address, identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCBOR(w, r, http.StatusOK, env)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, identity string) {
	var entry envelope.IndexEntry
	if err := s.readCBOR(r, &entry); err != nil {
		s.writeError(w, r, err)
		return
	}
	if entry.Owner != identity {
		s.writeError(w, r, failure.New(failure.AccessDenied, "%s may not index an entry owned by %s", identity, entry.Owner))
		return
	}
	if err := s.store.Index().Index(r.Context(), entry); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, identity string) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, r, failure.New(failure.Invalid, "limit %q is not a non-negative integer", raw))
			return
		}
		limit = parsed
	}
	entries, err := s.store.Index().Search(r.Context(), identity, query.Get("q"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeCBOR(w, r, http.StatusOK, SearchResponse{Entries: entries})
}

func (s *Server) readCBOR(r *http.Request, v any) error {
	data, err := netutil.ReadBlob(r.Body, maxMetadataSize)
	if err != nil {
		return failure.Wrap(failure.Invalid, err, "reading request body")
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return failure.Wrap(failure.Invalid, err, "decoding request body")
	}
	return nil
}

func (s *Server) writeCBOR(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := codec.Marshal(v)
	if err != nil {
		s.logger.Error("encoding response", "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", codec.ContentType)
	w.WriteHeader(status)
	w.Write(data)
}

// writeError reports err with its kind. Internal errors are logged
// and their detail withheld from the caller.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := failure.KindOf(err)
	message := err.Error()
	if kind == failure.Internal {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	s.writeCBOR(w, r, netutil.StatusForKind(kind), ErrorResponse{Kind: kind, Message: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration", time.Since(start),
		)
	})
}
