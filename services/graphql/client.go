package graphql

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"go.uber.org/zap"

	"github.com/upb/vision-gateway/cognito"
	"github.com/upb/vision-gateway/session"
)

var (
	// ErrNotConfigured is returned when no GraphQL endpoint is configured.
	ErrNotConfigured = errors.New("graphql endpoint is not configured")

	// ErrInvalidQuery is returned when the query document does not parse.
	ErrInvalidQuery = errors.New("invalid graphql query")

	// ErrUnsupportedAuthMode is returned for an unknown auth mode.
	ErrUnsupportedAuthMode = errors.New("unsupported auth mode")

	// ErrMissingAPIKey is returned when apiKey mode is used without a key.
	ErrMissingAPIKey = errors.New("api key is not configured")
)

// AuthMode selects how a request is authorized.
type AuthMode string

const (
	AuthModeAPIKey   AuthMode = "apiKey"
	AuthModeUserPool AuthMode = "userPool"
	AuthModeOIDC     AuthMode = "oidc"
	AuthModeIAM      AuthMode = "iam"
	AuthModeNone     AuthMode = "none"
)

// Options describes one GraphQL operation.
type Options struct {
	Query         string         `json:"query" validate:"required"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
	AuthMode      AuthMode       `json:"authMode,omitempty" validate:"omitempty,oneof=apiKey userPool oidc iam none"`
}

// Location points into the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is a GraphQL error entry.
type Error struct {
	Message   string         `json:"message"`
	Path      []any          `json:"path,omitempty"`
	Locations []Location     `json:"locations,omitempty"`
	ErrorType string         `json:"errorType,omitempty"`
	Extension map[string]any `json:"extensions,omitempty"`
}

// Response is the GraphQL response envelope. Errors reported by the server
// are kept here and are not returned as a Go error.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []Error         `json:"errors,omitempty"`
}

// HTTPError is returned when the endpoint answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("graphql endpoint returned %d: %s", e.StatusCode, e.Body)
}

// HTTPStatusCode returns the status the endpoint answered with.
func (e *HTTPError) HTTPStatusCode() int {
	return e.StatusCode
}

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client executes GraphQL operations against the configured endpoint using
// the credentials of a server context.
type Client struct {
	http   Doer
	signer *v4.Signer
	logger *zap.Logger
	now    func() time.Time
}

// NewClient creates a GraphQL client.
func NewClient(httpClient Doer, logger *zap.Logger) *Client {
	return &Client{
		http:   httpClient,
		signer: v4.NewSigner(),
		logger: logger,
		now:    time.Now,
	}
}

const maxErrorBody = 4 << 10

// Do validates and executes opts. headers are merged after the auth headers.
func (c *Client) Do(ctx context.Context, spec session.ContextSpec, opts Options, headers http.Header) (*Response, error) {
	cfg, err := spec.Config()
	if err != nil {
		return nil, err
	}
	if cfg.API.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	if err := validateQuery(opts); err != nil {
		return nil, err
	}

	mode := opts.AuthMode
	if mode == "" {
		mode = AuthMode(cfg.API.DefaultAuthMode)
	}
	if mode == "" {
		mode = AuthModeUserPool
	}

	body, err := json.Marshal(struct {
		Query         string         `json:"query"`
		Variables     map[string]any `json:"variables,omitempty"`
		OperationName string         `json:"operationName,omitempty"`
	}{opts.Query, opts.Variables, opts.OperationName})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.API.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if err := c.authorize(ctx, spec, cfg, mode, req, body, headers); err != nil {
		return nil, err
	}

	c.logger.Debug("executing graphql operation",
		zap.String("operation", opts.OperationName),
		zap.String("auth_mode", string(mode)),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) authorize(ctx context.Context, spec session.ContextSpec, cfg session.ResourceConfig, mode AuthMode, req *http.Request, body []byte, headers http.Header) error {
	lib, err := spec.Library()
	if err != nil {
		return err
	}

	switch mode {
	case AuthModeAPIKey:
		if cfg.API.APIKey == "" {
			return ErrMissingAPIKey
		}
		req.Header.Set("x-api-key", cfg.API.APIKey)

	case AuthModeUserPool, AuthModeOIDC:
		tokens, err := lib.Auth.TokenProvider.FetchTokens(ctx, session.FetchTokensOptions{})
		if err != nil {
			return err
		}
		if tokens == nil {
			return cognito.ErrUserUnauthenticated
		}
		token := tokens.AccessToken.Raw
		if mode == AuthModeOIDC {
			if tokens.IDToken == nil {
				return cognito.ErrUserUnauthenticated
			}
			token = tokens.IDToken.Raw
		}
		req.Header.Set("Authorization", token)

	case AuthModeIAM, AuthModeNone:

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAuthMode, mode)
	}

	for name, values := range headers {
		req.Header.Del(name)
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	if mode != AuthModeIAM {
		return nil
	}

	creds, err := cognito.AWSCredentials(lib, false).Retrieve(ctx)
	if err != nil {
		return err
	}
	region := cfg.API.Region
	if region == "" {
		region = cfg.Auth.Region
	}
	sum := sha256.Sum256(body)
	return c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), "appsync", region, c.now())
}

func validateQuery(opts Options) error {
	doc, err := parser.ParseQuery(&ast.Source{Input: opts.Query})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if len(doc.Operations) == 0 {
		return fmt.Errorf("%w: no operation defined", ErrInvalidQuery)
	}
	if opts.OperationName != "" && doc.Operations.ForName(opts.OperationName) == nil {
		return fmt.Errorf("%w: operation %q not found", ErrInvalidQuery, opts.OperationName)
	}
	if opts.OperationName == "" && len(doc.Operations) > 1 {
		return fmt.Errorf("%w: operationName is required for multiple operations", ErrInvalidQuery)
	}
	return nil
}
