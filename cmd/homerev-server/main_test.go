package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/homerev/api/internal/config"
	"github.com/homerev/api/internal/graph"
	"github.com/homerev/api/internal/platform/auth"
	"github.com/homerev/api/internal/platform/authz"
	"github.com/homerev/api/internal/platform/db"
	"github.com/homerev/api/internal/platform/health"
	"github.com/homerev/api/internal/platform/idp"
	"github.com/homerev/api/internal/platform/middleware"
	"github.com/homerev/api/internal/platform/telemetry"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                  "development",
		CORSOrigins:          []string{"http://localhost:3000"},
		RateLimitRPS:         100,
		RateLimitBurst:       100,
		RequestTimeout:       5 * time.Second,
		BodyLimit:            "1M",
		GraphQLIntrospection: true,
		StudentEmailSuffix:   "@student.uhasselt.be",
	}
}

func newTestServer(t *testing.T, cfg *config.Config, recorders ...middleware.AuditRecorder) http.Handler {
	t.Helper()
	logger := zerolog.Nop()
	exec, err := graph.NewExecutor(graph.Config{
		Oracle:        authz.OracleFunc(func(context.Context, string, string) (bool, error) { return false, nil }),
		Introspection: true,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("build executor: %v", err)
	}
	verifier, err := newVerifier(cfg)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	accounts := idp.NewDevProvider()
	return newEcho(routes{
		cfg:      cfg,
		logger:   logger,
		exec:     exec,
		hooks:    idp.NewHookHandler(idp.NewSignUpPolicy(accounts, cfg.StudentEmailSuffix, logger), cfg.HookSecret, logger),
		metrics:  telemetry.NewProvider(),
		health:   health.NewChecker().Add("users_db", func(context.Context) error { return nil }),
		verifier: verifier,
		audit:    recorders,
	})
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func devIdentity(id, role string) map[string]string {
	return map[string]string{auth.DevIdentityHeader: id, auth.DevRoleHeader: role}
}

func TestServer_Health(t *testing.T) {
	h := newTestServer(t, testConfig())
	rec := do(h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
}

func TestServer_Metrics(t *testing.T) {
	h := newTestServer(t, testConfig())
	do(h, http.MethodGet, "/health", "", nil)

	rec := do(h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `homerev_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Errorf("expected the health request to be counted, got:\n%s", rec.Body.String())
	}
}

func TestServer_GraphQLRequiresPrincipal(t *testing.T) {
	h := newTestServer(t, testConfig())
	rec := do(h, http.MethodPost, "/graphql", `{"query":"{ __typename }"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "UNAUTHENTICATED") {
		t.Errorf("expected UNAUTHENTICATED code, got %s", rec.Body.String())
	}
}

func TestServer_GraphQLWithDevIdentity(t *testing.T) {
	var entries []middleware.AuditEntry
	rec := middleware.AuditRecorderFunc(func(_ context.Context, e middleware.AuditEntry) error {
		entries = append(entries, e)
		return nil
	})
	h := newTestServer(t, testConfig(), rec)

	resp := do(h, http.MethodPost, "/graphql", `{"query":"query Ping { __typename }","operationName":"Ping"}`, devIdentity("T1", "therapist"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Principal != "T1" || entries[0].Operation != "Ping" {
		t.Errorf("unexpected audit entry %+v", entries[0])
	}
}

func TestServer_SignedTokens(t *testing.T) {
	cfg := testConfig()
	cfg.AuthSigningKey = "test-signing-key"
	h := newTestServer(t, cfg)

	token, err := auth.IssueDevToken([]byte(cfg.AuthSigningKey), "P1", auth.RolePatient, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	rec := do(h, http.MethodPost, "/graphql", `{"query":"{ __typename }"}`, map[string]string{"Authorization": "Bearer " + token})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(h, http.MethodPost, "/graphql", `{"query":"{ __typename }"}`, map[string]string{"Authorization": "Bearer not-a-token"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", rec.Code)
	}
}

func TestServer_AdminRequirements(t *testing.T) {
	h := newTestServer(t, testConfig())

	rec := do(h, http.MethodGet, "/admin/requirements", "", devIdentity("A1", "admin"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var entries []authz.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Coordinate == "Query.patient" {
			found = true
		}
	}
	if !found {
		t.Error("expected Query.patient in the requirement listing")
	}

	rec = do(h, http.MethodGet, "/admin/requirements", "", devIdentity("T1", "therapist"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a therapist, got %d", rec.Code)
	}
}

func TestServer_HooksDisabledWithoutSecret(t *testing.T) {
	h := newTestServer(t, testConfig())
	rec := do(h, http.MethodPost, "/hooks/account-created", `{"uid":"U1"}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestNewVerifier(t *testing.T) {
	cfg := testConfig()
	v, err := newVerifier(cfg)
	if err != nil || v != nil {
		t.Fatalf("expected no verifier in development without a key, got %v, %v", v, err)
	}

	cfg.AuthMode = config.AuthModeExternal
	if _, err := newVerifier(cfg); err == nil {
		t.Fatal("expected an error without a key, jwks url or issuer")
	}
}

func TestRateLimitConfig(t *testing.T) {
	cfg := &config.Config{}
	if got := rateLimitConfig(cfg); got != middleware.DefaultRateLimitConfig() {
		t.Errorf("expected defaults, got %+v", got)
	}
	cfg.RateLimitRPS = 5
	cfg.RateLimitBurst = 7
	got := rateLimitConfig(cfg)
	if got.RequestsPerSecond != 5 || got.BurstSize != 7 {
		t.Errorf("unexpected config %+v", got)
	}
}

func TestTherapistInputFromFlags(t *testing.T) {
	cmd := therapistCmd().Commands()[0]
	_ = cmd.Flags().Set("name", "Dr. One")
	_ = cmd.Flags().Set("birthdate", "1980-02-29")
	in, err := therapistInputFromFlags(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Name != "Dr. One" || in.Birthdate.Day() != 29 {
		t.Errorf("unexpected input %+v", in)
	}

	_ = cmd.Flags().Set("birthdate", "29/02/1980")
	if _, err := therapistInputFromFlags(cmd); err == nil {
		t.Error("expected a birthdate format error")
	}
}

func TestSchemaCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := schemaCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "directive @auth") {
		t.Error("expected the SDL to be printed")
	}

	out.Reset()
	cmd = schemaCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--requirements"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), `"field": "Therapist.patients"`) {
		t.Errorf("expected requirement listing, got %s", out.String())
	}
}

func TestPrintMigrationStatus(t *testing.T) {
	applied := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	printMigrationStatus(cmd, []db.MigrationStatus{
		{Version: 1, Name: "users", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "indexes"},
	})
	s := out.String()
	if !strings.Contains(s, "2024-01-02 03:04:05") || !strings.Contains(s, "pending") {
		t.Errorf("unexpected output:\n%s", s)
	}
}
