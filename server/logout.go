package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	oidc "github.com/giantswarm/oidc-core"
	"github.com/giantswarm/oidc-core/storage"
)

// buildLogoutToken assembles and signs a back-channel logout token
// (OpenID Connect Back-Channel Logout 1.0). The events claim marks the
// logout event; sid is included only when the client requires session
// binding. A logout token never carries a nonce.
func (s *Server) buildLogoutToken(client *storage.Client, userID, sessionID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": s.Config.Issuer,
		"sub": userID,
		"aud": client.ID,
		"iat": now.Unix(),
		"exp": now.Add(time.Duration(s.Config.LogoutTokenTTL) * time.Second).Unix(),
		"jti": generateRandomToken(),
		"events": map[string]any{
			oidc.BackchannelLogoutEvent: map[string]any{},
		},
	}
	if client.BackchannelLogoutSessionRequired && sessionID != "" {
		claims["sid"] = sessionID
	}

	return s.keys.SignJWT(claims)
}

// NotifyClientLogout delivers a back-channel logout token to one client.
// Returns true on a 2xx response; any network error or non-2xx status is a
// failure, logged but never propagated as an error.
func (s *Server) NotifyClientLogout(ctx context.Context, clientID, userID, sessionID string) bool {
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		s.Logger.Warn("Logout notification skipped: unknown client", "client_id", clientID)
		return false
	}
	return s.notifyClient(ctx, client, userID, sessionID)
}

func (s *Server) notifyClient(ctx context.Context, client *storage.Client, userID, sessionID string) bool {
	if client.BackchannelLogoutURI == "" {
		return false
	}

	logoutToken, err := s.buildLogoutToken(client, userID, sessionID)
	if err != nil {
		s.Logger.Warn("Failed to build logout token",
			"client_id", client.ID,
			"error", err)
		return false
	}

	form := url.Values{"logout_token": {logoutToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.BackchannelLogoutURI,
		strings.NewReader(form.Encode()))
	if err != nil {
		s.Logger.Warn("Failed to build logout request",
			"client_id", client.ID,
			"error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.Config.HTTPClient.Do(req)
	success := false
	if err != nil {
		s.Logger.Warn("Back-channel logout delivery failed",
			"client_id", client.ID,
			"uri", client.BackchannelLogoutURI,
			"error", err)
	} else {
		success = resp.StatusCode >= 200 && resp.StatusCode < 300
		if !success {
			s.Logger.Warn("Back-channel logout rejected by client",
				"client_id", client.ID,
				"status", resp.StatusCode)
		}
		if err := resp.Body.Close(); err != nil {
			s.Logger.Warn("Failed to close logout response body", "error", err)
		}
	}

	if s.Auditor != nil {
		s.Auditor.LogLogoutNotification(userID, client.ID, success)
	}
	s.metrics.RecordLogoutNotification(ctx, client.ID, success)

	return success
}

// NotifyAllClients fans out back-channel logout notifications to every
// client with a configured logout URI. Deliveries run concurrently and
// independently; one client's failure or timeout never delays another's.
// Returns the IDs of the clients that acknowledged the notification.
func (s *Server) NotifyAllClients(ctx context.Context, userID, sessionID string) []string {
	clients, err := s.clients.ListClients(ctx)
	if err != nil {
		s.Logger.Warn("Logout fan-out skipped: failed to list clients", "error", err)
		return nil
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded []string
	)

	for _, client := range clients {
		if client.BackchannelLogoutURI == "" {
			continue
		}
		wg.Add(1)
		go func(client *storage.Client) {
			defer wg.Done()
			if s.notifyClient(ctx, client, userID, sessionID) {
				mu.Lock()
				succeeded = append(succeeded, client.ID)
				mu.Unlock()
			}
		}(client)
	}
	wg.Wait()

	return succeeded
}

// FrontchannelLogoutURL computes the front-channel logout URL for a client.
// iss and sid query parameters are appended only when the client requires
// session binding. Returns "" when the client has no front-channel URI.
func (s *Server) FrontchannelLogoutURL(client *storage.Client, sessionID string) string {
	if client.FrontchannelLogoutURI == "" {
		return ""
	}
	if !client.FrontchannelLogoutSessionRequired {
		return client.FrontchannelLogoutURI
	}

	parsed, err := url.Parse(client.FrontchannelLogoutURI)
	if err != nil {
		s.Logger.Warn("Invalid front-channel logout URI",
			"client_id", client.ID,
			"error", err)
		return ""
	}
	query := parsed.Query()
	query.Set("iss", s.Config.Issuer)
	if sessionID != "" {
		query.Set("sid", sessionID)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// ValidateLogoutRequest validates an RP-initiated logout (end-session)
// request. The target client is resolved from the unverified audience of the
// id_token_hint, or from an explicit client_id; when both are given they
// must agree. The post-logout redirect URI must match the client's allow-list
// exactly or by a trailing-* prefix entry. Returns the client and its
// consent-bypass flag.
func (s *Server) ValidateLogoutRequest(ctx context.Context, idTokenHint, clientID, postLogoutRedirectURI string) (*storage.Client, bool, error) {
	hintClientID := ""
	if idTokenHint != "" {
		// The hint only names the client; its signature is not what
		// authorizes the logout, so an unverified parse is sufficient
		token, _, err := jwt.NewParser().ParseUnverified(idTokenHint, jwt.MapClaims{})
		if err != nil {
			return nil, false, oidc.ErrInvalidRequest("id_token_hint is not a valid JWT")
		}
		if audiences, err := token.Claims.GetAudience(); err == nil && len(audiences) > 0 {
			hintClientID = audiences[0]
		}
	}

	if clientID != "" && hintClientID != "" && clientID != hintClientID {
		return nil, false, oidc.ErrInvalidRequest("client_id does not match the id_token_hint audience")
	}

	targetID := clientID
	if targetID == "" {
		targetID = hintClientID
	}
	if targetID == "" {
		return nil, false, oidc.ErrInvalidRequest("client_id or id_token_hint is required")
	}

	client, err := s.clients.GetClient(ctx, targetID)
	if err != nil {
		return nil, false, oidc.ErrInvalidRequest("unknown client")
	}

	if postLogoutRedirectURI != "" && !matchPostLogoutURI(client.PostLogoutRedirectURIs, postLogoutRedirectURI) {
		return nil, false, oidc.ErrInvalidRequest("post_logout_redirect_uri is not registered for this client")
	}

	return client, client.BypassConsent, nil
}

// matchPostLogoutURI matches a post-logout redirect URI against the
// allow-list: exact match, or prefix match for entries ending in "*".
func matchPostLogoutURI(allowed []string, uri string) bool {
	for _, entry := range allowed {
		if entry == uri {
			return true
		}
		if strings.HasSuffix(entry, "*") && strings.HasPrefix(uri, strings.TrimSuffix(entry, "*")) {
			return true
		}
	}
	return false
}
