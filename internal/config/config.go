package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	AuthModeDevelopment = "development"
	AuthModeExternal    = "external"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	AuthMode string `mapstructure:"AUTH_MODE"`

	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL  string `mapstructure:"AUTH_JWKS_URL"`
	// AuthSigningKey enables HS256 tokens for local use only.
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	UsersDatabaseURL string `mapstructure:"USERS_DATABASE_URL"`
	DBMaxConns       int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32  `mapstructure:"DB_MIN_CONNS"`

	MedicalMongoURI string `mapstructure:"MEDICAL_MONGO_URI"`
	MedicalMongoDB  string `mapstructure:"MEDICAL_MONGO_DB"`

	RedisURL    string `mapstructure:"REDIS_URL"`
	AuditStream string `mapstructure:"AUDIT_STREAM"`

	IDPAdminURL     string `mapstructure:"IDP_ADMIN_URL"`
	IDPTokenURL     string `mapstructure:"IDP_TOKEN_URL"`
	IDPClientID     string `mapstructure:"IDP_CLIENT_ID"`
	IDPClientSecret string `mapstructure:"IDP_CLIENT_SECRET"`

	HookSecret         string   `mapstructure:"HOOK_SECRET"`
	StudentEmailSuffix string   `mapstructure:"STUDENT_EMAIL_SUFFIX"`
	ProjectTypes       []string `mapstructure:"PROJECT_TYPES"`

	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit            string        `mapstructure:"BODY_LIMIT"`
	GraphQLIntrospection bool          `mapstructure:"GRAPHQL_INTROSPECTION"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"USERS_DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MEDICAL_MONGO_URI", "MEDICAL_MONGO_DB",
	"REDIS_URL", "AUDIT_STREAM",
	"IDP_ADMIN_URL", "IDP_TOKEN_URL", "IDP_CLIENT_ID", "IDP_CLIENT_SECRET",
	"HOOK_SECRET", "STUDENT_EMAIL_SUFFIX", "PROJECT_TYPES",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT", "BODY_LIMIT", "GRAPHQL_INTROSPECTION",
}

// Load reads the environment and an optional .env file. It does not
// validate; callers that start the server call Validate.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" is inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MEDICAL_MONGO_DB", "homerev")
	v.SetDefault("AUDIT_STREAM", "homerev:audit")
	v.SetDefault("STUDENT_EMAIL_SUFFIX", "@student.uhasselt.be")
	v.SetDefault("PROJECT_TYPES", "bimanueel,VR")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("GRAPHQL_INTROSPECTION", true)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.ProjectTypes = splitList(v.GetString("PROJECT_TYPES"))
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise development
// environments use development auth and everything else verifies tokens.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	return AuthModeExternal
}

// UsesDevIdentityProvider reports whether account management runs against
// the in-memory provider.
func (c *Config) UsesDevIdentityProvider() bool {
	return c.IDPAdminURL == ""
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.UsersDatabaseURL == "" {
		return fmt.Errorf("USERS_DATABASE_URL is required")
	}
	if c.MedicalMongoURI == "" {
		return fmt.Errorf("MEDICAL_MONGO_URI is required")
	}

	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE %q is not allowed when ENV=production", mode)
		}
	case AuthModeExternal:
		if c.AuthIssuer == "" && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
			return fmt.Errorf(
				"AUTH_ISSUER or AUTH_JWKS_URL must be set when AUTH_MODE is \"external\" (current ENV=%q). "+
					"Refusing to start without authentication configuration", c.Env)
		}
		if c.AuthSigningKey != "" && c.IsProduction() {
			return fmt.Errorf("AUTH_SIGNING_KEY is for development only and must not be set when ENV=production")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"external\", got %q", mode)
	}

	if c.IDPAdminURL != "" {
		if c.IDPTokenURL == "" || c.IDPClientID == "" || c.IDPClientSecret == "" {
			return fmt.Errorf("IDP_TOKEN_URL, IDP_CLIENT_ID and IDP_CLIENT_SECRET are required with IDP_ADMIN_URL")
		}
	} else if c.IsProduction() {
		return fmt.Errorf("IDP_ADMIN_URL is required in production")
	}

	if c.IsProduction() && c.HookSecret == "" {
		return fmt.Errorf("HOOK_SECRET is required in production")
	}
	if c.StudentEmailSuffix == "" {
		return fmt.Errorf("STUDENT_EMAIL_SUFFIX must not be empty")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
