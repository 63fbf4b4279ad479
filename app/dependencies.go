package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"go.uber.org/zap"

	"github.com/upb/vision-gateway/auth"
	"github.com/upb/vision-gateway/cognito"
	"github.com/upb/vision-gateway/config"
	"github.com/upb/vision-gateway/handlers"
	"github.com/upb/vision-gateway/middleware"
	"github.com/upb/vision-gateway/repositories"
	"github.com/upb/vision-gateway/repositories/postgres"
	"github.com/upb/vision-gateway/services"
	"github.com/upb/vision-gateway/services/authapi"
	"github.com/upb/vision-gateway/services/graphql"
	"github.com/upb/vision-gateway/services/providers"
	"github.com/upb/vision-gateway/services/providers/bedrock"
	"github.com/upb/vision-gateway/services/storage"
	"github.com/upb/vision-gateway/services/vision"
)

// ErrUnsupportedProvider is returned when MODEL_PROVIDER names a provider
// that cannot be built.
var ErrUnsupportedProvider = errors.New("unsupported model provider")

const graphQLTimeout = 30 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	AWS    aws.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repositories, nil when no database is configured
	InvocationLog repositories.InvocationRepository

	// Provider Registry
	Providers *providers.Registry

	// HTTP
	Sessions    *middleware.SessionMiddleware
	Auth        *auth.Handler
	Session     *handlers.SessionHandler
	Vision      *handlers.VisionHandler
	Invocations *handlers.InvocationHandler
	Health      *handlers.HealthHandler

	userPools cognito.UserPoolsAPI
	identity  cognito.IdentityAPI
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Cognito.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newDependencies(ctx, cfg, awsCfg, logger)
}

func newDependencies(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		AWS:    awsCfg,
		Logger: logger,
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize provider registry
	if err := deps.initProviders(cfg); err != nil {
		deps.closeDB()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	// Initialize sessions and auth (Cognito)
	deps.initAuth(ctx, cfg)

	if err := deps.initHandlers(cfg); err != nil {
		deps.closeDB()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase connects the invocation log when DATABASE_URL is set
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Enabled() {
		d.Logger.Info("no database configured, invocation log disabled")
		return nil
	}

	db, err := postgres.NewDB(cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return err
	}

	d.DB = db
	d.InvocationLog = postgres.NewInvocationRepository(db, d.Logger)
	return nil
}

// initProviders builds the configured model provider
func (d *Dependencies) initProviders(cfg *config.Config) error {
	var provider providers.Provider

	switch cfg.Vision.Provider {
	case "bedrock":
		client := bedrockruntime.NewFromConfig(d.AWS, func(o *bedrockruntime.Options) {
			o.Region = cfg.Vision.Region
		})
		provider = bedrock.NewAdapter(client, providers.ProviderConfig{
			Model:            cfg.Vision.ModelID,
			MaxTokens:        cfg.Vision.MaxTokens,
			AnthropicVersion: cfg.Vision.AnthropicVersion,
		}, d.Logger)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Vision.Provider)
	}

	registry, err := providers.NewRegistry(provider)
	if err != nil {
		return err
	}
	d.Logger.Info("registered model provider",
		zap.String("provider", provider.Name()),
		zap.String("region", cfg.Vision.Region),
		zap.String("model", cfg.Vision.ModelID))

	d.Providers = registry
	return nil
}

func (d *Dependencies) initAuth(ctx context.Context, cfg *config.Config) {
	d.userPools = cip.NewFromConfig(d.AWS)
	d.identity = cognitoidentity.NewFromConfig(d.AWS)

	d.Sessions = middleware.NewSessionMiddleware(cfg.ResourceConfig(), cfg.Cookies.Options(), d.userPools, d.identity, d.Logger)

	oauth := auth.NewOAuth2Config(cfg.Cognito)
	if oauth == nil {
		d.Logger.Warn("cognito hosted UI not configured, OAuth endpoints disabled")
	}

	// A nil *oidc.IDTokenVerifier must not become a non-nil interface
	var verifier auth.IDTokenVerifier
	if v := auth.NewIDTokenVerifier(ctx, cfg.Cognito); v != nil {
		verifier = v
	}

	var authenticator auth.PasswordAuthenticator
	if cfg.Cognito.ClientID != "" {
		authenticator = cognito.NewAuthenticator(d.userPools, cfg.Cognito.ClientID)
	} else {
		d.Logger.Warn("cognito client not configured, password sign-in disabled")
	}

	d.Auth = auth.NewHandler(cfg, oauth, verifier, authenticator, d.Logger)
	d.Logger.Info("auth handler initialized")
}

func (d *Dependencies) initHandlers(cfg *config.Config) error {
	caps := services.Capabilities{
		Auth:    authapi.NewAPI(d.userPools, d.Logger),
		Storage: storage.NewAPI(storage.NewS3ClientFactory(d.AWS), d.Logger),
		GraphQL: graphql.NewClient(&http.Client{Timeout: graphQLTimeout}, d.Logger),
	}
	d.Session = handlers.NewSessionHandler(cfg.ResourceConfig(), caps, d.Logger)

	provider, err := d.Providers.Lookup(cfg.Vision.Provider)
	if err != nil {
		return err
	}
	var recorder vision.InvocationRecorder
	var checker handlers.HealthChecker
	if d.InvocationLog != nil {
		recorder = d.InvocationLog
		d.Invocations = handlers.NewInvocationHandler(d.InvocationLog, d.Logger)
	}
	if d.DB != nil {
		checker = d.DB
	}

	d.Vision = handlers.NewVisionHandler(vision.NewService(provider, recorder, d.Logger), d.Logger)
	d.Health = handlers.NewHealthHandler(checker, d.Providers, d.Logger)
	return nil
}

func (d *Dependencies) closeDB() {
	if d.DB != nil {
		_ = d.DB.Close()
		d.DB = nil
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Close database connection
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
		d.DB = nil
	}

	// Sync logger
	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
