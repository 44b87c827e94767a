// Package memory provides an in-memory implementation of all storage interfaces.
// It is suitable for development, testing, and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oidc-core/instrumentation"
	"github.com/giantswarm/oidc-core/internal/util"
	"github.com/giantswarm/oidc-core/security"
	"github.com/giantswarm/oidc-core/storage"
)

const (
	// tokenIDLogLength is the number of characters to include when logging
	// token and code values. Enough uniqueness for debugging without exposing
	// the credential itself.
	tokenIDLogLength = 8
)

// Store is an in-memory implementation of all storage interfaces.
// It implements CodeStore, TokenStore, ClientStore, and SessionStore.
type Store struct {
	mu sync.RWMutex

	authCodes     map[string]*storage.AuthorizationCode
	accessTokens  map[string]*storage.Token
	refreshTokens map[string]*storage.Token
	clients       map[string]*storage.Client
	sessions      map[string]map[string]any

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	meter           metric.Meter

	// Atomic counters for metrics (lock-free access during metric collection)
	codesCountAtomic         atomic.Int64
	accessTokensCountAtomic  atomic.Int64
	refreshTokensCountAtomic atomic.Int64
	clientsCountAtomic       atomic.Int64
	sessionsCountAtomic      atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	logger          *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.CodeStore    = (*Store)(nil)
	_ storage.TokenStore   = (*Store)(nil)
	_ storage.ClientStore  = (*Store)(nil)
	_ storage.SessionStore = (*Store)(nil)
)

// New creates a new in-memory store with default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		authCodes:       make(map[string]*storage.AuthorizationCode),
		accessTokens:    make(map[string]*storage.Token),
		refreshTokens:   make(map[string]*storage.Token),
		clients:         make(map[string]*storage.Client),
		sessions:        make(map[string]map[string]any),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
		s.meter = inst.Meter("storage")
	}

	// Initialize atomic counters with current counts
	s.codesCountAtomic.Store(int64(len(s.authCodes)))
	s.accessTokensCountAtomic.Store(int64(len(s.accessTokens)))
	s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.sessionsCountAtomic.Store(int64(len(s.sessions)))
	s.mu.Unlock()

	if inst != nil {
		// Register storage size callbacks using atomic counters (lock-free)
		err := inst.RegisterStoreSizeCallbacks(
			func() int64 { return s.codesCountAtomic.Load() },
			func() int64 { return s.accessTokensCountAtomic.Load() },
			func() int64 { return s.refreshTokensCountAtomic.Load() },
			func() int64 { return s.clientsCountAtomic.Load() },
			func() int64 { return s.sessionsCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	close(s.stopCleanup)
}

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveAuthorizationCode saves an issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_authorization_code", err, startTime)
	}()

	if code == nil || code.Code == "" {
		err = fmt.Errorf("authorization code value is required")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	codeCopy := *code
	s.authCodes[code.Code] = &codeCopy
	s.codesCountAtomic.Store(int64(len(s.authCodes)))
	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// ConsumeAuthorizationCode atomically retrieves and deletes an authorization code.
//
// SECURITY: This operation is atomic - only ONE concurrent request for a given
// code value can succeed. All other concurrent requests observe the code as
// absent, exactly as if it never existed. Expired codes are also reported as
// not found to prevent information leakage.
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "consume_authorization_code", err, startTime)
	}()

	s.mu.Lock() // MUST use write lock for atomic get-and-delete
	defer s.mu.Unlock()

	authCode, ok := s.authCodes[code]
	if !ok {
		err = storage.ErrAuthorizationCodeNotFound
		return nil, err
	}

	// Delete first: even an expired code must not be redeemable twice
	delete(s.authCodes, code)
	s.codesCountAtomic.Store(int64(len(s.authCodes)))

	if time.Now().After(authCode.ExpiresAt) {
		s.logger.Debug("Authorization code expired at consume",
			"code_prefix", util.SafeTruncate(code, tokenIDLogLength))
		err = storage.ErrAuthorizationCodeNotFound
		return nil, err
	}

	s.logger.Debug("Consumed authorization code",
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength),
		"client_id", authCode.ClientID)

	codeCopy := *authCode
	return &codeCopy, nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveAccessToken records access token metadata keyed by token value
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.Token) error {
	ctx, span := s.startStorageSpan(ctx, "save_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_access_token", err, startTime)
	}()

	if token == nil || token.Value == "" {
		err = fmt.Errorf("token value is required")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokenCopy := *token
	tokenCopy.TokenType = storage.TokenTypeAccess
	s.accessTokens[token.Value] = &tokenCopy
	s.accessTokensCountAtomic.Store(int64(len(s.accessTokens)))
	s.logger.Debug("Saved access token",
		"token_prefix", util.SafeTruncate(token.Value, tokenIDLogLength),
		"client_id", token.ClientID)
	return nil
}

// GetAccessToken retrieves access token metadata by value
func (s *Store) GetAccessToken(ctx context.Context, value string) (*storage.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_access_token", err, startTime)
	}()

	s.mu.RLock()
	token, ok := s.accessTokens[value]
	s.mu.RUnlock()

	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}

	// Check expiry with clock skew grace period
	if security.IsTokenExpired(token.ExpiresAt) {
		err = fmt.Errorf("%w: access token", storage.ErrTokenExpired)
		return nil, err
	}

	tokenCopy := *token
	return &tokenCopy, nil
}

// SaveRefreshToken records refresh token metadata keyed by token value
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.Token) error {
	ctx, span := s.startStorageSpan(ctx, "save_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_refresh_token", err, startTime)
	}()

	if token == nil || token.Value == "" {
		err = fmt.Errorf("token value is required")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokenCopy := *token
	tokenCopy.TokenType = storage.TokenTypeRefresh
	s.refreshTokens[token.Value] = &tokenCopy
	s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))
	s.logger.Debug("Saved refresh token",
		"token_prefix", util.SafeTruncate(token.Value, tokenIDLogLength),
		"client_id", token.ClientID)
	return nil
}

// GetRefreshToken retrieves refresh token metadata by value
func (s *Store) GetRefreshToken(ctx context.Context, value string) (*storage.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "get_refresh_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_refresh_token", err, startTime)
	}()

	s.mu.RLock()
	token, ok := s.refreshTokens[value]
	s.mu.RUnlock()

	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}

	if security.IsTokenExpired(token.ExpiresAt) {
		err = fmt.Errorf("%w: refresh token", storage.ErrTokenExpired)
		return nil, err
	}

	tokenCopy := *token
	return &tokenCopy, nil
}

// DeleteRefreshToken removes a refresh token (used for rotation)
func (s *Store) DeleteRefreshToken(ctx context.Context, value string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_refresh_token")
	defer span.End()

	startTime := time.Now()

	defer func() {
		s.recordStorageOperation(ctx, span, "delete_refresh_token", nil, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refreshTokens, value)
	s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))
	s.logger.Debug("Deleted refresh token",
		"token_prefix", util.SafeTruncate(value, tokenIDLogLength))
	return nil
}

// RevokeToken removes the access or refresh token with the given value.
// Unknown values are not an error (RFC 7009 anti-probing).
func (s *Store) RevokeToken(ctx context.Context, value string) error {
	ctx, span := s.startStorageSpan(ctx, "revoke_token")
	defer span.End()

	startTime := time.Now()

	defer func() {
		s.recordStorageOperation(ctx, span, "revoke_token", nil, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, foundAccess := s.accessTokens[value]
	_, foundRefresh := s.refreshTokens[value]
	delete(s.accessTokens, value)
	delete(s.refreshTokens, value)
	s.accessTokensCountAtomic.Store(int64(len(s.accessTokens)))
	s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))

	if foundAccess || foundRefresh {
		s.logger.Debug("Revoked token",
			"token_prefix", util.SafeTruncate(value, tokenIDLogLength))
	}
	return nil
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient saves a registered client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil || client.ID == "" {
		err = fmt.Errorf("client ID is required")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clientCopy := *client
	s.clients[client.ID] = &clientCopy
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.logger.Debug("Saved client", "client_id", client.ID, "client_name", client.ClientName)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()

	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}

	clientCopy := *client
	return &clientCopy, nil
}

// ListClients lists all registered clients
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "list_clients")
	defer span.End()

	startTime := time.Now()

	defer func() {
		s.recordStorageOperation(ctx, span, "list_clients", nil, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clientCopy := *client
		clients = append(clients, &clientCopy)
	}
	return clients, nil
}

// ============================================================
// SessionStore Implementation
// ============================================================

// SaveSession stores the claims of an authenticated session. The provider
// core only reads sessions; this setter exists for the authentication layer
// and for tests.
func (s *Store) SaveSession(ctx context.Context, sessionID string, claims map[string]any) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	claimsCopy := make(map[string]any, len(claims))
	for k, v := range claims {
		claimsCopy[k] = v
	}
	s.sessions[sessionID] = claimsCopy
	s.sessionsCountAtomic.Store(int64(len(s.sessions)))
	return nil
}

// GetSession retrieves the claims of a session
func (s *Store) GetSession(ctx context.Context, sessionID string) (map[string]any, error) {
	s.mu.RLock()
	claims, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrSessionNotFound, sessionID)
	}

	claimsCopy := make(map[string]any, len(claims))
	for k, v := range claims {
		claimsCopy[k] = v
	}
	return claimsCopy, nil
}

// DeleteSession removes a session
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	s.sessionsCountAtomic.Store(int64(len(s.sessions)))
	return nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0

	// Cleanup expired authorization codes (with clock skew grace period)
	for code, authCode := range s.authCodes {
		if security.IsTokenExpired(authCode.ExpiresAt) {
			delete(s.authCodes, code)
			cleaned++
		}
	}

	// Cleanup expired access tokens
	for value, token := range s.accessTokens {
		if security.IsTokenExpired(token.ExpiresAt) {
			delete(s.accessTokens, value)
			cleaned++
		}
	}

	// Cleanup expired refresh tokens
	for value, token := range s.refreshTokens {
		if security.IsTokenExpired(token.ExpiresAt) {
			delete(s.refreshTokens, value)
			cleaned++
		}
	}

	s.codesCountAtomic.Store(int64(len(s.authCodes)))
	s.accessTokensCountAtomic.Store(int64(len(s.accessTokens)))
	s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
}

// ============================================================
// Instrumentation helpers
// ============================================================

// startStorageSpan starts a trace span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else {
		if span != nil {
			span.SetStatus(codes.Ok, "")
		}
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
