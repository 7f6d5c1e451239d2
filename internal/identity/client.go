// Package identity wraps the Firebase Identity Toolkit REST API.
//
// Every operation is a pass-through to the provider with response
// reshaping; the service keeps no local account state. Provider error
// codes are mapped onto the service error taxonomy in errors.go.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/easyfix/easyfix-go/internal/errors"
	"github.com/easyfix/easyfix-go/internal/logging"
	"github.com/easyfix/easyfix-go/internal/models"
)

// DefaultBaseURL is the production Identity Toolkit endpoint.
const DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1"

// DefaultRole is assigned to accounts registered without an explicit role.
const DefaultRole = "user"

// Gateway is the identity-provider surface the HTTP handlers depend on.
type Gateway interface {
	Register(ctx context.Context, email, password, displayName string, roles []string) (*models.RegisterResponse, error)
	Login(ctx context.Context, email, password string) (*models.LoginResponse, error)
	VerifyToken(ctx context.Context, idToken string) (*models.AuthInfo, map[string]any, error)
	UpdateProfile(ctx context.Context, idToken string, displayName, photoURL *string) (*models.UpdateProfileResponse, error)
	ChangePassword(ctx context.Context, idToken, newPassword string) error
	SendPasswordReset(ctx context.Context, email string) error
	SetRoles(ctx context.Context, uid string, roles []string) error
}

// Client implements Gateway over the Identity Toolkit REST API.
type Client struct {
	baseURL      string
	apiKey       string
	projectID    string
	serviceToken string // bearer for admin endpoints (custom claims)
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates an identity client. apiKey authenticates public
// endpoints; serviceToken authenticates the admin accounts:update endpoint
// used for role claims.
func NewClient(apiKey, projectID, serviceToken string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("identity api key missing")
	}
	return &Client{
		baseURL:      DefaultBaseURL,
		apiKey:       apiKey,
		projectID:    projectID,
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: 20 * time.Second},
		logger:       logging.Component("identity"),
	}, nil
}

// WithBaseURL points the client at a different endpoint. Used by tests.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

// Register creates an account and mirrors the role set into custom claims.
// An empty roles slice gets the default role.
func (c *Client) Register(ctx context.Context, email, password, displayName string, roles []string) (*models.RegisterResponse, error) {
	if len(roles) == 0 {
		roles = []string{DefaultRole}
	}

	var resp struct {
		LocalID string `json:"localId"`
		Email   string `json:"email"`
		IDToken string `json:"idToken"`
	}
	payload := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	if displayName != "" {
		payload["displayName"] = displayName
	}
	if err := c.post(ctx, "accounts:signUp", payload, &resp); err != nil {
		return nil, err
	}

	if err := c.SetRoles(ctx, resp.LocalID, roles); err != nil {
		// Account exists but its claims are missing; report and carry on
		// with the default the authorizer assumes anyway.
		c.logger.Warn("failed to set role claims after registration",
			"uid", resp.LocalID, "error", err)
	}

	return &models.RegisterResponse{
		UID:         resp.LocalID,
		Email:       resp.Email,
		DisplayName: displayName,
		Roles:       roles,
	}, nil
}

// Login exchanges credentials for a bearer token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var resp struct {
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    string `json:"expiresIn"`
		LocalID      string `json:"localId"`
		Email        string `json:"email"`
	}
	payload := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	if err := c.post(ctx, "accounts:signInWithPassword", payload, &resp); err != nil {
		return nil, err
	}

	expires, _ := strconv.Atoi(resp.ExpiresIn)
	return &models.LoginResponse{
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    expires,
		UID:          resp.LocalID,
		Email:        resp.Email,
	}, nil
}

// VerifyToken validates an ID token with the provider and returns the
// caller's identity plus the custom claims attached to the account.
func (c *Client) VerifyToken(ctx context.Context, idToken string) (*models.AuthInfo, map[string]any, error) {
	var resp struct {
		Users []struct {
			LocalID          string `json:"localId"`
			Email            string `json:"email"`
			DisplayName      string `json:"displayName"`
			EmailVerified    bool   `json:"emailVerified"`
			CustomAttributes string `json:"customAttributes"`
		} `json:"users"`
	}
	if err := c.post(ctx, "accounts:lookup", map[string]any{"idToken": idToken}, &resp); err != nil {
		return nil, nil, err
	}
	if len(resp.Users) == 0 {
		return nil, nil, apperrors.Authentication("invalid or expired token")
	}

	u := resp.Users[0]
	claims := parseClaims(u.CustomAttributes)
	info := &models.AuthInfo{
		UID:           u.LocalID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		EmailVerified: u.EmailVerified,
		Roles:         rolesFromClaims(claims),
	}
	return info, claims, nil
}

// UpdateProfile updates display name and/or photo URL for the token's owner.
// Nil fields are left untouched.
func (c *Client) UpdateProfile(ctx context.Context, idToken string, displayName, photoURL *string) (*models.UpdateProfileResponse, error) {
	payload := map[string]any{
		"idToken":           idToken,
		"returnSecureToken": false,
	}
	if displayName != nil {
		payload["displayName"] = *displayName
	}
	if photoURL != nil {
		payload["photoUrl"] = *photoURL
	}

	var resp struct {
		LocalID     string `json:"localId"`
		DisplayName string `json:"displayName"`
		PhotoURL    string `json:"photoUrl"`
	}
	if err := c.post(ctx, "accounts:update", payload, &resp); err != nil {
		return nil, err
	}
	return &models.UpdateProfileResponse{
		UID:         resp.LocalID,
		DisplayName: resp.DisplayName,
		PhotoURL:    resp.PhotoURL,
	}, nil
}

// ChangePassword sets a new password for the token's owner.
func (c *Client) ChangePassword(ctx context.Context, idToken, newPassword string) error {
	payload := map[string]any{
		"idToken":           idToken,
		"password":          newPassword,
		"returnSecureToken": true,
	}
	return c.post(ctx, "accounts:update", payload, nil)
}

// SendPasswordReset triggers the provider's password-reset email flow.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	payload := map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}
	return c.post(ctx, "accounts:sendOobCode", payload, nil)
}

// SetRoles writes the role list into the account's custom claims through
// the admin endpoint. Clients see the new roles after a token refresh.
func (c *Client) SetRoles(ctx context.Context, uid string, roles []string) error {
	if len(roles) == 0 {
		roles = []string{DefaultRole}
	}
	attrs, err := json.Marshal(map[string]any{"roles": roles})
	if err != nil {
		return apperrors.Internal(err, "failed to encode role claims")
	}

	path := fmt.Sprintf("projects/%s/accounts:update", c.projectID)
	payload := map[string]any{
		"localId":          uid,
		"customAttributes": string(attrs),
	}
	return c.postAdmin(ctx, path, payload, nil)
}

// post calls a public endpoint authenticated by API key.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	url := fmt.Sprintf("%s/%s?key=%s", c.baseURL, path, c.apiKey)
	return c.do(ctx, url, payload, out, "")
}

// postAdmin calls a privileged endpoint authenticated by the service token.
func (c *Client) postAdmin(ctx context.Context, path string, payload, out any) error {
	if c.serviceToken == "" {
		return apperrors.Internal(nil, "identity service token not configured")
	}
	url := fmt.Sprintf("%s/%s", c.baseURL, path)
	return c.do(ctx, url, payload, out, c.serviceToken)
}

func (c *Client) do(ctx context.Context, url string, payload, out any, bearer string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Internal(err, "failed to encode identity request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperrors.Internal(err, "failed to create identity request")
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Upstream(err, "identity provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return mapProviderError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Internal(err, "failed to decode identity response")
	}
	return nil
}

// parseClaims decodes the customAttributes JSON blob the provider attaches
// to accounts. A missing or malformed blob yields empty claims.
func parseClaims(attrs string) map[string]any {
	claims := map[string]any{}
	if attrs == "" {
		return claims
	}
	if err := json.Unmarshal([]byte(attrs), &claims); err != nil {
		return map[string]any{}
	}
	return claims
}

// rolesFromClaims extracts the role list from a claim set.
func rolesFromClaims(claims map[string]any) []string {
	raw, ok := claims["roles"].([]any)
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}
