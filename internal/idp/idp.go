package idp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Account identifies a signed-in provider account. Only the documented
// attributes are exposed; everything else stays opaque to the gateway.
type Account struct {
	Username string
	ObjectID string
	TenantID string
	Name     string
	Email    string
}

// TokenSet is the result of an interactive exchange or a silent renewal: an
// API-scoped access token plus the refresh capability for later renewals.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Account      *Account
}

// AzureIssuer returns the v2.0 issuer URL for an Azure AD tenant.
func AzureIssuer(tenantID string) string {
	if tenantID == "" {
		tenantID = "common"
	}
	return "https://login.microsoftonline.com/" + tenantID + "/v2.0"
}

// Client wraps the OIDC provider for interactive sign-in and silent renewal.
// It must be explicitly constructed and Initialize()d; the reconciler waits on
// Ready() before its first checking pass.
type Client struct {
	issuer       string
	clientID     string
	clientSecret string
	redirectURL  string
	scopes       []string

	mu      sync.Mutex
	ready   chan struct{}
	initErr error

	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
}

// New creates an uninitialized client. apiScope is the backend-API scope
// requested alongside the standard identity scopes.
func New(issuer, clientID, clientSecret, redirectURL, apiScope string) *Client {
	scopes := []string{oidc.ScopeOpenID, "profile", "email", "offline_access"}
	if apiScope != "" {
		scopes = append(scopes, apiScope)
	}
	return &Client{
		issuer:       issuer,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		scopes:       scopes,
		ready:        make(chan struct{}),
	}
}

// Initialize runs OIDC discovery. Safe to call more than once: a failed
// attempt records the error and signals waiters so they fail promptly instead
// of blocking forever, and a later call retries discovery.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.provider != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	provider, err := oidc.NewProvider(ctx, c.issuer)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider != nil {
		// a concurrent call finished discovery first
		return nil
	}
	if err != nil {
		c.initErr = fmt.Errorf("failed to discover OIDC provider: %w", err)
		c.signalReady()
		return c.initErr
	}
	c.provider = provider
	c.verifier = provider.Verifier(&oidc.Config{ClientID: c.clientID})
	c.oauth = &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  c.redirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       c.scopes,
	}
	c.initErr = nil
	c.signalReady()
	return nil
}

// signalReady wakes waiters after a discovery attempt, success or failure.
// Callers hold c.mu.
func (c *Client) signalReady() {
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
}

// Ready is signaled once the first discovery attempt has finished, whatever
// its outcome; check Initialized for success.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// Initialized reports whether discovery completed successfully.
func (c *Client) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider != nil
}

// WaitReady blocks until a discovery attempt has finished or the context is
// done. A failed attempt returns its error so callers can reject promptly
// rather than hang on a provider that never came up.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider != nil {
		return nil
	}
	return c.initErr
}

// AuthCodeURL builds the interactive sign-in redirect.
func (c *Client) AuthCodeURL(state, nonce string) string {
	return c.oauth.AuthCodeURL(state, oidc.Nonce(nonce))
}

// EndSessionURL builds the provider sign-out redirect used by the best-effort
// logout step.
func (c *Client) EndSessionURL(postLogoutRedirect string) string {
	base := strings.TrimSuffix(c.issuer, "/v2.0") + "/oauth2/v2.0/logout"
	if postLogoutRedirect == "" {
		return base
	}
	return base + "?post_logout_redirect_uri=" + url.QueryEscape(postLogoutRedirect)
}

// Exchange completes the authorization-code flow and extracts the provider
// account from the ID token.
func (c *Client) Exchange(ctx context.Context, code, nonce string) (*TokenSet, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	rawID, _ := tok.Extra("id_token").(string)
	if rawID != "" {
		acct, err := c.accountFromIDToken(ctx, rawID, nonce)
		if err != nil {
			return nil, err
		}
		ts.Account = acct
	}
	if ts.AccessToken == "" {
		return nil, errors.New("provider returned no access token")
	}
	return ts, nil
}

// Renew performs a silent refresh-grant renewal bound to the given account
// capability.
func (c *Client) Renew(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, errors.New("no refresh token")
	}
	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("silent renewal: %w", err)
	}
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	// providers may rotate or omit the refresh token; keep the old one then
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

type idClaims struct {
	PreferredUsername string `json:"preferred_username"`
	OID               string `json:"oid"`
	TID               string `json:"tid"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Nonce             string `json:"nonce"`
}

func (c *Client) accountFromIDToken(ctx context.Context, raw, nonce string) (*Account, error) {
	var claims idClaims

	idt, err := c.verifier.Verify(ctx, raw)
	if err != nil {
		// integration mode: parse claims without signature verification
		if strings.ToLower(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN"))) != "true" {
			return nil, fmt.Errorf("invalid id token: %w", err)
		}
		mc := jwt.MapClaims{}
		if _, _, perr := jwt.NewParser().ParseUnverified(raw, mc); perr != nil {
			return nil, fmt.Errorf("invalid id token: %w", perr)
		}
		claims.PreferredUsername, _ = mc["preferred_username"].(string)
		claims.OID, _ = mc["oid"].(string)
		claims.TID, _ = mc["tid"].(string)
		claims.Name, _ = mc["name"].(string)
		claims.Email, _ = mc["email"].(string)
		claims.Nonce, _ = mc["nonce"].(string)
	} else {
		if err := idt.Claims(&claims); err != nil {
			return nil, fmt.Errorf("parse id token claims: %w", err)
		}
	}

	if nonce != "" && claims.Nonce != "" && claims.Nonce != nonce {
		return nil, errors.New("id token nonce mismatch")
	}
	return &Account{
		Username: claims.PreferredUsername,
		ObjectID: claims.OID,
		TenantID: claims.TID,
		Name:     claims.Name,
		Email:    claims.Email,
	}, nil
}
