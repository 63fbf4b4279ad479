package config

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/upb/vision-gateway/session"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cognito       CognitoConfig
	Cookies       CookieConfig
	Storage       StorageConfig
	GraphQL       GraphQLConfig
	Vision        VisionConfig
	Observability ObservabilityConfig
	Environment   string `env:"ENVIRONMENT" envDefault:"development"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port               int           `env:"PORT" envDefault:"8080"`
	ReadTimeout        time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout       time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout    time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	TLS                TLSConfig
}

// TLSConfig enables HTTPS when Enabled is set
type TLSConfig struct {
	Enabled  bool   `env:"TLS_ENABLED" envDefault:"false"`
	CertFile string `env:"TLS_CERT_FILE" envDefault:"certs/cert.pem"`
	KeyFile  string `env:"TLS_KEY_FILE" envDefault:"certs/key.pem"`
}

// DatabaseConfig holds the optional PostgreSQL connection for the invocation
// log. The log is disabled when ConnectionString is empty.
type DatabaseConfig struct {
	ConnectionString string        `env:"DATABASE_URL"`
	MaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns     int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// CognitoConfig holds AWS Cognito configuration
type CognitoConfig struct {
	Region           string   `env:"COGNITO_REGION" envDefault:"us-east-1"`
	UserPoolID       string   `env:"COGNITO_USER_POOL_ID"`
	ClientID         string   `env:"COGNITO_CLIENT_ID"`
	ClientSecret     string   `env:"COGNITO_CLIENT_SECRET"`
	IdentityPoolID   string   `env:"COGNITO_IDENTITY_POOL_ID"`
	AllowGuestAccess bool     `env:"COGNITO_ALLOW_GUEST_ACCESS" envDefault:"false"`
	Domain           string   `env:"COGNITO_DOMAIN"` // Hosted UI domain (e.g., https://my-app.auth.us-east-1.amazoncognito.com)
	RedirectURI      string   `env:"COGNITO_REDIRECT_URI" envDefault:"http://localhost:8080/oauth2/idpresponse"`
	FrontEndURL      string   `env:"FRONT_END_URL" envDefault:"http://localhost:5173"`
	Scopes           []string `env:"COGNITO_SCOPES" envSeparator:"," envDefault:"openid,email,profile"`
}

// CookieConfig controls the attributes of the auth cookies written back to
// the browser
type CookieConfig struct {
	Domain   string        `env:"COOKIE_DOMAIN"`
	Secure   bool          `env:"COOKIE_SECURE" envDefault:"true"`
	SameSite string        `env:"COOKIE_SAME_SITE" envDefault:"lax"`
	MaxAge   time.Duration `env:"COOKIE_MAX_AGE" envDefault:"720h"`
}

// StorageConfig holds the S3 bucket used by the storage API
type StorageConfig struct {
	Bucket string `env:"STORAGE_BUCKET"`
	Region string `env:"STORAGE_REGION"`
}

// GraphQLConfig holds the AppSync endpoint configuration
type GraphQLConfig struct {
	Endpoint        string `env:"GRAPHQL_ENDPOINT"`
	Region          string `env:"GRAPHQL_REGION"`
	DefaultAuthMode string `env:"GRAPHQL_DEFAULT_AUTH_MODE" envDefault:"userPool"`
	APIKey          string `env:"GRAPHQL_API_KEY"`
}

// VisionConfig holds the model invocation configuration
type VisionConfig struct {
	Provider         string        `env:"MODEL_PROVIDER" envDefault:"bedrock"`
	Region           string        `env:"BEDROCK_REGION" envDefault:"us-east-1"`
	ModelID          string        `env:"BEDROCK_MODEL_ID" envDefault:"anthropic.claude-3-sonnet-20240229-v1:0"`
	MaxTokens        int           `env:"BEDROCK_MAX_TOKENS" envDefault:"1000"`
	AnthropicVersion string        `env:"BEDROCK_ANTHROPIC_VERSION" envDefault:"bedrock-2023-05-31"`
	Timeout          time.Duration `env:"VISION_TIMEOUT" envDefault:"30s"`
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json or console
}

var validAuthModes = map[string]bool{"apiKey": true, "userPool": true, "oidc": true, "iam": true, "none": true}

var validSameSite = map[string]bool{"lax": true, "strict": true, "none": true}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Cognito validation (required in production)
	if c.IsProduction() {
		if c.Cognito.UserPoolID == "" {
			return fmt.Errorf("cognito user pool ID is required in production")
		}
		if c.Cognito.ClientID == "" {
			return fmt.Errorf("cognito client ID is required in production")
		}
		if !c.Cookies.Secure {
			return fmt.Errorf("secure cookies are required in production")
		}
	}

	if c.Cognito.AllowGuestAccess && c.Cognito.IdentityPoolID == "" {
		return fmt.Errorf("guest access requires COGNITO_IDENTITY_POOL_ID")
	}

	if !validSameSite[strings.ToLower(c.Cookies.SameSite)] {
		return fmt.Errorf("invalid COOKIE_SAME_SITE %q", c.Cookies.SameSite)
	}

	if c.GraphQL.DefaultAuthMode != "" && !validAuthModes[c.GraphQL.DefaultAuthMode] {
		return fmt.Errorf("invalid GRAPHQL_DEFAULT_AUTH_MODE %q", c.GraphQL.DefaultAuthMode)
	}

	if c.Vision.Provider == "" {
		return fmt.Errorf("model provider is required")
	}
	if c.Vision.MaxTokens <= 0 {
		return fmt.Errorf("BEDROCK_MAX_TOKENS must be positive")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// ResourceConfig returns the backend resource configuration handed to every
// server context.
func (c *Config) ResourceConfig() session.ResourceConfig {
	return session.ResourceConfig{
		Auth: session.AuthConfig{
			Region:           c.Cognito.Region,
			UserPoolID:       c.Cognito.UserPoolID,
			UserPoolClientID: c.Cognito.ClientID,
			IdentityPoolID:   c.Cognito.IdentityPoolID,
			AllowGuestAccess: c.Cognito.AllowGuestAccess,
		},
		Storage: session.StorageConfig{
			Bucket: c.Storage.Bucket,
			Region: c.Storage.Region,
		},
		API: session.APIConfig{
			Endpoint:        c.GraphQL.Endpoint,
			Region:          c.GraphQL.Region,
			DefaultAuthMode: c.GraphQL.DefaultAuthMode,
			APIKey:          c.GraphQL.APIKey,
		},
	}
}

// Options returns the write policy for session cookies.
func (c *CookieConfig) Options() *session.CookieOptions {
	opts := session.DefaultCookieOptions()
	opts.Domain = c.Domain
	opts.Secure = c.Secure
	if c.MaxAge > 0 {
		opts.MaxAge = c.MaxAge
	}
	switch strings.ToLower(c.SameSite) {
	case "strict":
		opts.SameSite = http.SameSiteStrictMode
	case "none":
		opts.SameSite = http.SameSiteNoneMode
	default:
		opts.SameSite = http.SameSiteLaxMode
	}
	return opts
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != ""
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return c.ConnectionString
}

// LogString returns a safe string for logging (no password).
func (c *DatabaseConfig) LogString() string {
	u, err := url.Parse(c.ConnectionString)
	if err != nil || u.Host == "" {
		return "host=<from DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
