package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the provider core
type Metrics struct {
	// Token Endpoint Metrics
	TokenRequestsTotal       metric.Int64Counter
	AccessTokensIssued       metric.Int64Counter
	RefreshTokensIssued      metric.Int64Counter
	IDTokensIssued           metric.Int64Counter
	AuthorizationCodesIssued metric.Int64Counter
	TokenIntrospections      metric.Int64Counter
	TokenRevocations         metric.Int64Counter
	ClientRegistrations      metric.Int64Counter

	// Logout Metrics
	LogoutNotifications metric.Int64Counter

	// Security Metrics
	RateLimitExceeded    metric.Int64Counter
	PKCEValidationFailed metric.Int64Counter
	ClientAuthFailures   metric.Int64Counter
	AuditEventsTotal     metric.Int64Counter

	// JWKS / Encryption Metrics
	JWKSCacheLookups     metric.Int64Counter
	TokenEncryptionTotal metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StoreCodesCount          metric.Int64ObservableGauge
	StoreAccessTokensCount   metric.Int64ObservableGauge
	StoreRefreshTokensCount  metric.Int64ObservableGauge
	StoreClientsCount        metric.Int64ObservableGauge
	StoreSessionsCount       metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	clientkeysMeter := inst.Meter("clientkeys")
	storageMeter := inst.Meter("storage")

	var err error
	m.TokenRequestsTotal, err = serverMeter.Int64Counter(
		"oidc.token.requests.total",
		metric.WithDescription("Total number of token endpoint requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.requests.total counter: %w", err)
	}

	m.AccessTokensIssued, err = serverMeter.Int64Counter(
		"oidc.access_tokens.issued",
		metric.WithDescription("Number of access tokens issued"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create access_tokens.issued counter: %w", err)
	}

	m.RefreshTokensIssued, err = serverMeter.Int64Counter(
		"oidc.refresh_tokens.issued",
		metric.WithDescription("Number of refresh tokens issued"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh_tokens.issued counter: %w", err)
	}

	m.IDTokensIssued, err = serverMeter.Int64Counter(
		"oidc.id_tokens.issued",
		metric.WithDescription("Number of ID tokens issued"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create id_tokens.issued counter: %w", err)
	}

	m.AuthorizationCodesIssued, err = serverMeter.Int64Counter(
		"oidc.authorization_codes.issued",
		metric.WithDescription("Number of authorization codes issued"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization_codes.issued counter: %w", err)
	}

	m.TokenIntrospections, err = serverMeter.Int64Counter(
		"oidc.token.introspections",
		metric.WithDescription("Number of token introspection requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.introspections counter: %w", err)
	}

	m.TokenRevocations, err = serverMeter.Int64Counter(
		"oidc.token.revocations",
		metric.WithDescription("Number of token revocation requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.revocations counter: %w", err)
	}

	m.ClientRegistrations, err = serverMeter.Int64Counter(
		"oidc.client.registrations",
		metric.WithDescription("Number of dynamic client registrations"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client.registrations counter: %w", err)
	}

	m.LogoutNotifications, err = serverMeter.Int64Counter(
		"oidc.logout.notifications",
		metric.WithDescription("Number of back-channel logout notifications sent"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logout.notifications counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"oidc.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.PKCEValidationFailed, err = securityMeter.Int64Counter(
		"oidc.pkce.validation_failed",
		metric.WithDescription("Number of PKCE validation failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pkce.validation_failed counter: %w", err)
	}

	m.ClientAuthFailures, err = securityMeter.Int64Counter(
		"oidc.client_auth.failures",
		metric.WithDescription("Number of client authentication failures at the token endpoint"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client_auth.failures counter: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"oidc.audit.events.total",
		metric.WithDescription("Total number of audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	m.JWKSCacheLookups, err = clientkeysMeter.Int64Counter(
		"oidc.jwks.cache.lookups",
		metric.WithDescription("Number of client JWKS cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jwks.cache.lookups counter: %w", err)
	}

	m.TokenEncryptionTotal, err = clientkeysMeter.Int64Counter(
		"oidc.token.encryptions",
		metric.WithDescription("Number of ID/UserInfo token encryption attempts by result"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.encryptions counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StoreCodesCount, err = storageMeter.Int64ObservableGauge(
		"storage.size.authorization_codes",
		metric.WithDescription("Number of live authorization codes in the store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.size.authorization_codes gauge: %w", err)
	}

	m.StoreAccessTokensCount, err = storageMeter.Int64ObservableGauge(
		"storage.size.access_tokens",
		metric.WithDescription("Number of access token records in the store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.size.access_tokens gauge: %w", err)
	}

	m.StoreRefreshTokensCount, err = storageMeter.Int64ObservableGauge(
		"storage.size.refresh_tokens",
		metric.WithDescription("Number of refresh token records in the store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.size.refresh_tokens gauge: %w", err)
	}

	m.StoreClientsCount, err = storageMeter.Int64ObservableGauge(
		"storage.size.clients",
		metric.WithDescription("Number of registered clients in the store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.size.clients gauge: %w", err)
	}

	m.StoreSessionsCount, err = storageMeter.Int64ObservableGauge(
		"storage.size.sessions",
		metric.WithDescription("Number of sessions in the store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.size.sessions gauge: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordTokenRequest records a token endpoint request
func (m *Metrics) RecordTokenRequest(ctx context.Context, grantType, result string) {
	if m == nil {
		return
	}
	m.TokenRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("result", result),
	))
}

// RecordTokensIssued records the tokens minted by one issuance
func (m *Metrics) RecordTokensIssued(ctx context.Context, clientID string, accessToken, idToken, refreshToken bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("client_id", clientID))
	if accessToken {
		m.AccessTokensIssued.Add(ctx, 1, attrs)
	}
	if idToken {
		m.IDTokensIssued.Add(ctx, 1, attrs)
	}
	if refreshToken {
		m.RefreshTokensIssued.Add(ctx, 1, attrs)
	}
}

// RecordAuthorizationCodeIssued records an authorization code issuance
func (m *Metrics) RecordAuthorizationCodeIssued(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.AuthorizationCodesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordIntrospection records a token introspection
func (m *Metrics) RecordIntrospection(ctx context.Context, active bool) {
	if m == nil {
		return
	}
	m.TokenIntrospections.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("active", active),
	))
}

// RecordRevocation records a token revocation request
func (m *Metrics) RecordRevocation(ctx context.Context) {
	if m == nil {
		return
	}
	m.TokenRevocations.Add(ctx, 1)
}

// RecordClientRegistration records a dynamic client registration
func (m *Metrics) RecordClientRegistration(ctx context.Context, authMethod string) {
	if m == nil {
		return
	}
	m.ClientRegistrations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("auth_method", authMethod),
	))
}

// RecordLogoutNotification records a back-channel logout delivery attempt
func (m *Metrics) RecordLogoutNotification(ctx context.Context, clientID string, success bool) {
	if m == nil {
		return
	}
	m.LogoutNotifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("success", success),
	))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiterType string) {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter_type", limiterType),
	))
}

// RecordPKCEValidationFailed records a PKCE validation failure
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
	))
}

// RecordClientAuthFailure records a client authentication failure
func (m *Metrics) RecordClientAuthFailure(ctx context.Context, authMethod string) {
	if m == nil {
		return
	}
	m.ClientAuthFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("auth_method", authMethod),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordJWKSCacheLookup records a client JWKS cache lookup.
// Result is "hit", "miss", or "error".
func (m *Metrics) RecordJWKSCacheLookup(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.JWKSCacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordTokenEncryption records an ID/UserInfo token encryption attempt.
// Result is "encrypted" or "skipped" (best-effort fallback).
func (m *Metrics) RecordTokenEncryption(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.TokenEncryptionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("result", result),
	}

	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
