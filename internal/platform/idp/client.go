package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/homerev/api/internal/platform/auth"
)

const (
	scimUserSchema  = "urn:ietf:params:scim:schemas:core:2.0:User"
	scimPatchSchema = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
	// roleSchema is the extension attribute the provider copies into the role
	// claim of issued tokens.
	roleSchema = "urn:scim:homerev:schema"
)

// Config locates the provider's SCIM admin API and the client credentials
// used to call it.
type Config struct {
	AdminURL     string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// Client talks to a SCIM 2.0 admin API authenticated with the OAuth2 client
// credentials grant.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.AdminURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("identity provider admin and token URLs are required")
	}
	oauthConfig := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	hc := oauthConfig.Client(context.Background())
	hc.Timeout = cfg.Timeout
	if hc.Timeout == 0 {
		hc.Timeout = 10 * time.Second
	}
	return &Client{baseURL: strings.TrimRight(cfg.AdminURL, "/"), http: hc}, nil
}

type scimEmail struct {
	Value    string `json:"value"`
	Primary  bool   `json:"primary,omitempty"`
	Verified bool   `json:"verified,omitempty"`
}

type scimUser struct {
	Schemas     []string    `json:"schemas,omitempty"`
	ID          string      `json:"id,omitempty"`
	UserName    string      `json:"userName"`
	DisplayName string      `json:"displayName,omitempty"`
	Password    string      `json:"password,omitempty"`
	Emails      []scimEmail `json:"emails,omitempty"`
	Providers   []string    `json:"providers,omitempty"`
}

type patchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path,omitempty"`
	Value interface{} `json:"value"`
}

type patchRequest struct {
	Schemas    []string  `json:"schemas"`
	Operations []patchOp `json:"Operations"`
}

func (c *Client) CreateAccount(ctx context.Context, email, password, displayName string) (string, error) {
	body := scimUser{
		Schemas:     []string{scimUserSchema},
		UserName:    email,
		DisplayName: displayName,
		Password:    password,
		Emails:      []scimEmail{{Value: email, Primary: true}},
	}
	var created scimUser
	status, err := c.do(ctx, http.MethodPost, "/scim2/Users", body, &created)
	if err != nil {
		return "", err
	}
	switch {
	case status == http.StatusConflict:
		return "", fmt.Errorf("%w: %s", ErrAccountExists, email)
	case status != http.StatusCreated && status != http.StatusOK:
		return "", unexpected("create account", status)
	case created.ID == "":
		return "", fmt.Errorf("%w: create account: response carries no id", ErrUpstream)
	}
	return created.ID, nil
}

func (c *Client) GetAccount(ctx context.Context, uid string) (*Account, error) {
	var u scimUser
	status, err := c.do(ctx, http.MethodGet, "/scim2/Users/"+url.PathEscape(uid), nil, &u)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, uid)
	default:
		return nil, unexpected("get account", status)
	}
	a := &Account{UID: u.ID, DisplayName: u.DisplayName, Providers: u.Providers}
	for _, e := range u.Emails {
		if e.Primary || a.Email == "" {
			a.Email = e.Value
			a.EmailVerified = e.Verified
		}
	}
	return a, nil
}

// SetRole replaces the role claim of the account. Tokens issued before the
// change keep the old role until they expire.
func (c *Client) SetRole(ctx context.Context, uid string, role auth.Role) error {
	body := patchRequest{
		Schemas: []string{scimPatchSchema},
		Operations: []patchOp{{
			Op:    "replace",
			Value: map[string]interface{}{roleSchema: map[string]string{"role": role.String()}},
		}},
	}
	status, err := c.do(ctx, http.MethodPatch, "/scim2/Users/"+url.PathEscape(uid), body, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrAccountNotFound, uid)
	}
	return unexpected("set role", status)
}

// DeleteAccount is idempotent: an account that is already gone is not an
// error.
func (c *Client) DeleteAccount(ctx context.Context, uid string) error {
	status, err := c.do(ctx, http.MethodDelete, "/scim2/Users/"+url.PathEscape(uid), nil, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return unexpected("delete account", status)
}

// do sends the request and decodes a 2xx body into out. Non-2xx statuses are
// returned for the caller to interpret.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/scim+json")
	if in != nil {
		req.Header.Set("Content-Type", "application/scim+json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %w", ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("%w: decode %s response: %w", ErrUpstream, path, err)
		}
	}
	return resp.StatusCode, nil
}

func unexpected(op string, status int) error {
	return fmt.Errorf("%w: %s: unexpected status %d", ErrUpstream, op, status)
}
