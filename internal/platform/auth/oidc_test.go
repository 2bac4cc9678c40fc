package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newDiscoveryServer(t *testing.T, doc func(issuer string) map[string]string) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc(server.URL))
	}))
	return server
}

func TestDiscover(t *testing.T) {
	server := newDiscoveryServer(t, func(issuer string) map[string]string {
		return map[string]string{
			"issuer":         issuer,
			"token_endpoint": issuer + "/oauth2/token",
			"jwks_uri":       issuer + "/oauth2/jwks",
		}
	})
	defer server.Close()

	d, err := Discover(server.URL+"/", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.JWKSURI != server.URL+"/oauth2/jwks" {
		t.Errorf("unexpected jwks_uri %s", d.JWKSURI)
	}
	if d.TokenEndpoint != server.URL+"/oauth2/token" {
		t.Errorf("unexpected token_endpoint %s", d.TokenEndpoint)
	}
}

func TestDiscover_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     func(issuer string) map[string]string
		wantErr string
	}{
		{
			name:    "issuer mismatch",
			doc:     func(string) map[string]string { return map[string]string{"issuer": "https://other.example.com", "jwks_uri": "x"} },
			wantErr: "names issuer",
		},
		{
			name:    "missing jwks_uri",
			doc:     func(issuer string) map[string]string { return map[string]string{"issuer": issuer} },
			wantErr: "missing jwks_uri",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newDiscoveryServer(t, tt.doc)
			defer server.Close()

			_, err := Discover(server.URL, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDiscover_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	if _, err := Discover(server.URL, nil); err == nil {
		t.Fatal("expected error for a 404 discovery endpoint")
	}
	if _, err := Discover("http://127.0.0.1:1", nil); err == nil {
		t.Fatal("expected error for unreachable issuer")
	}
}
