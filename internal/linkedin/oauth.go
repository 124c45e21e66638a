package linkedin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/linkedin-pipeline/internal/config"
	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/internal/storage"
	"github.com/linkedin-pipeline/pkg/logger"
)

// ErrNoToken is returned when no share token is configured or stored
var ErrNoToken = errors.New("no LinkedIn token found: set linkedin.access_token or run 'pipeline oauth login'")

const refreshWindow = 5 * time.Minute

// OAuthManager supplies access tokens for the share API, refreshing them
// through the OAuth 2.0 flow when a refresh token is available
type OAuthManager struct {
	config     *oauth2.Config
	repository storage.Repository // optional
	now        func() time.Time
	log        *logger.Logger

	mu           sync.RWMutex
	currentToken *models.OAuthToken
}

// NewOAuthManager creates a new OAuth manager. A configured access token
// takes effect immediately; otherwise tokens are read from repo.
func NewOAuthManager(cfg config.LinkedInConfig, repo storage.Repository, log *logger.Logger) *OAuthManager {
	m := &OAuthManager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://www.linkedin.com/oauth/v2/authorization",
				TokenURL: "https://www.linkedin.com/oauth/v2/accessToken",
			},
		},
		repository: repo,
		now:        time.Now,
		log:        log.WithComponent("oauth"),
	}

	if cfg.AccessToken != "" {
		// Static tokens without a known expiry are treated as non-expiring
		expiry, _ := time.Parse(time.RFC3339, cfg.TokenExpiresAt)
		m.currentToken = &models.OAuthToken{
			Provider:     models.ProviderLinkedIn,
			AccessToken:  cfg.AccessToken,
			RefreshToken: cfg.RefreshToken,
			TokenType:    "Bearer",
			ExpiresAt:    expiry,
		}
		m.log.Debug().Time("expires_at", expiry).Msg("OAuth token initialized from configuration")
	}

	return m
}

// GenerateState creates a random state for OAuth CSRF protection
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GetAuthURL returns the OAuth authorization URL
func (m *OAuthManager) GetAuthURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode exchanges the authorization code for tokens and stores them
func (m *OAuthManager) ExchangeCode(ctx context.Context, code string) (*models.OAuthToken, error) {
	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to exchange code")
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	stored := &models.OAuthToken{Provider: models.ProviderLinkedIn}
	stored.FromOAuth2Token(token)
	m.store(ctx, stored)

	m.log.Info().Time("expires_at", token.Expiry).Msg("Token saved")
	return stored, nil
}

// GetValidToken returns a usable access token, refreshing it when it is
// about to expire
func (m *OAuthManager) GetValidToken(ctx context.Context) (*models.OAuthToken, error) {
	m.mu.RLock()
	token := m.currentToken
	m.mu.RUnlock()

	if token == nil && m.repository != nil {
		dbToken, err := m.repository.GetToken(ctx, models.ProviderLinkedIn)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load token: %w", err)
		}
		if dbToken != nil {
			m.mu.Lock()
			m.currentToken = dbToken
			m.mu.Unlock()
			token = dbToken
		}
	}

	if token == nil {
		return nil, fmt.Errorf("linkedin oauth: %w", ErrNoToken)
	}

	if token.ExpiresWithin(m.now(), refreshWindow) {
		if token.RefreshToken == "" {
			return nil, fmt.Errorf("token expired at %s and no refresh token is available, re-authenticate", token.ExpiresAt.Format(time.RFC3339))
		}
		m.log.Info().Msg("Token expiring soon, refreshing")
		return m.refresh(ctx, token)
	}

	return token, nil
}

func (m *OAuthManager) refresh(ctx context.Context, token *models.OAuthToken) (*models.OAuthToken, error) {
	newToken, err := m.config.TokenSource(ctx, token.ToOAuth2Token()).Token()
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to refresh token")
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	refreshed := *token
	refreshed.FromOAuth2Token(newToken)
	m.store(ctx, &refreshed)

	m.log.Info().Time("expires_at", newToken.Expiry).Msg("Token refreshed")
	return &refreshed, nil
}

func (m *OAuthManager) store(ctx context.Context, token *models.OAuthToken) {
	m.mu.Lock()
	m.currentToken = token
	m.mu.Unlock()

	if m.repository != nil {
		if err := m.repository.SaveToken(ctx, token); err != nil {
			m.log.Warn().Err(err).Msg("Failed to save token to database (in-memory only)")
		}
	}
}

// TokenStatus reports whether a usable token exists and when it expires
func (m *OAuthManager) TokenStatus(ctx context.Context) (bool, time.Time, error) {
	token, err := m.GetValidToken(ctx)
	if err != nil {
		return false, time.Time{}, err
	}
	return true, token.ExpiresAt, nil
}

// Login runs the authorization code flow with a temporary callback server
// on addr. It returns once the code has been exchanged.
func (m *OAuthManager) Login(ctx context.Context, addr string, onURL func(authURL string)) error {
	state, err := GenerateState()
	if err != nil {
		return err
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			errChan <- fmt.Errorf("state mismatch")
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}
		if errMsg := q.Get("error"); errMsg != "" {
			errChan <- fmt.Errorf("oauth error: %s - %s", errMsg, q.Get("error_description"))
			http.Error(w, errMsg, http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no code in callback")
			http.Error(w, "No code", http.StatusBadRequest)
			return
		}
		codeChan <- code
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body style="font-family: sans-serif; text-align: center; padding: 50px;">
<h1>Authorization successful</h1><p>You can close this window and return to the terminal.</p>
</body></html>`)
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	defer server.Shutdown(context.Background())

	onURL(m.GetAuthURL(state))
	m.log.Info().Str("addr", addr).Msg("OAuth callback server started, waiting for authorization")

	select {
	case code := <-codeChan:
		_, err := m.ExchangeCode(ctx, code)
		return err
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
