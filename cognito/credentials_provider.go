package cognito

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"go.uber.org/zap"

	"github.com/upb/vision-gateway/session"
)

// credentialsRefreshWindow renews cached credentials shortly before expiry.
const credentialsRefreshWindow = 5 * time.Minute

// IdentityPoolCredentialsProvider exchanges user pool tokens for temporary
// AWS credentials through an identity pool. Instances are request scoped, so
// the credentials cache never outlives a request.
type IdentityPoolCredentialsProvider struct {
	client  IdentityAPI
	storage session.KeyValueStorage
	auth    session.AuthConfig
	logger  *zap.Logger
	now     func() time.Time

	mu                  sync.Mutex
	cached              *session.CredentialsAndIdentityID
	cachedAuthenticated bool
}

// NewIdentityPoolCredentialsProvider creates a credentials provider.
func NewIdentityPoolCredentialsProvider(client IdentityAPI, storage session.KeyValueStorage, auth session.AuthConfig, logger *zap.Logger) *IdentityPoolCredentialsProvider {
	return &IdentityPoolCredentialsProvider{
		client:  client,
		storage: storage,
		auth:    auth,
		logger:  logger,
		now:     time.Now,
	}
}

// IdentityIDKey is the storage key of the cached identity id.
func (p *IdentityPoolCredentialsProvider) IdentityIDKey() string {
	return fmt.Sprintf("com.amplify.Cognito.%s.identityId", p.auth.IdentityPoolID)
}

// FetchCredentials implements session.CredentialsProvider.
func (p *IdentityPoolCredentialsProvider) FetchCredentials(ctx context.Context, opts session.FetchCredentialsOptions) (*session.CredentialsAndIdentityID, error) {
	if p.auth.IdentityPoolID == "" {
		return nil, nil
	}
	authenticated := opts.Tokens != nil && opts.Tokens.IDToken != nil
	if !authenticated && !p.auth.AllowGuestAccess {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !opts.ForceRefresh && p.cached != nil && p.cachedAuthenticated == authenticated && !p.expiring(p.cached.Credentials) {
		return p.cached, nil
	}

	var logins map[string]string
	if authenticated {
		logins = map[string]string{p.loginProvider(): opts.Tokens.IDToken.Raw}
	}

	identityID, err := p.identityID(ctx, logins)
	if err != nil {
		return nil, err
	}

	out, err := p.client.GetCredentialsForIdentity(ctx, &cognitoidentity.GetCredentialsForIdentityInput{
		IdentityId: aws.String(identityID),
		Logins:     logins,
	})
	if err != nil {
		return nil, err
	}
	if out.Credentials == nil {
		return nil, ErrNoCredentials
	}
	if id := aws.ToString(out.IdentityId); id != "" && id != identityID {
		identityID = id
		if err := p.storage.SetItem(p.IdentityIDKey(), identityID); err != nil {
			return nil, err
		}
	}

	creds := aws.Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Source:          "CognitoIdentityPool",
	}
	if out.Credentials.Expiration != nil {
		creds.CanExpire = true
		creds.Expires = *out.Credentials.Expiration
	}

	p.cached = &session.CredentialsAndIdentityID{Credentials: creds, IdentityID: identityID}
	p.cachedAuthenticated = authenticated

	p.logger.Debug("issued identity pool credentials",
		zap.String("identity_id", identityID),
		zap.Bool("authenticated", authenticated),
	)
	return p.cached, nil
}

// ClearCredentials implements session.CredentialsProvider.
func (p *IdentityPoolCredentialsProvider) ClearCredentials() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cached = nil
}

func (p *IdentityPoolCredentialsProvider) identityID(ctx context.Context, logins map[string]string) (string, error) {
	id, found, err := p.storage.GetItem(p.IdentityIDKey())
	if err != nil {
		return "", err
	}
	if found && id != "" {
		return id, nil
	}

	out, err := p.client.GetId(ctx, &cognitoidentity.GetIdInput{
		IdentityPoolId: aws.String(p.auth.IdentityPoolID),
		Logins:         logins,
	})
	if err != nil {
		return "", err
	}
	id = aws.ToString(out.IdentityId)
	if err := p.storage.SetItem(p.IdentityIDKey(), id); err != nil {
		return "", err
	}
	return id, nil
}

func (p *IdentityPoolCredentialsProvider) loginProvider() string {
	return fmt.Sprintf("cognito-idp.%s.amazonaws.com/%s", p.auth.Region, p.auth.UserPoolID)
}

func (p *IdentityPoolCredentialsProvider) expiring(creds aws.Credentials) bool {
	return creds.CanExpire && !p.now().Add(credentialsRefreshWindow).Before(creds.Expires)
}

// AWSCredentials adapts a scope's providers to aws.CredentialsProvider so SDK
// clients sign requests as the current user (or guest).
func AWSCredentials(lib session.LibraryOptions, forceRefresh bool) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		if lib.Auth.CredentialsProvider == nil {
			return aws.Credentials{}, ErrNoCredentials
		}

		var tokens *session.AuthTokens
		if lib.Auth.TokenProvider != nil {
			var err error
			if tokens, err = lib.Auth.TokenProvider.FetchTokens(ctx, session.FetchTokensOptions{}); err != nil {
				return aws.Credentials{}, err
			}
		}

		res, err := lib.Auth.CredentialsProvider.FetchCredentials(ctx, session.FetchCredentialsOptions{
			Tokens:       tokens,
			ForceRefresh: forceRefresh,
		})
		if err != nil {
			return aws.Credentials{}, err
		}
		if res == nil {
			return aws.Credentials{}, ErrNoCredentials
		}
		return res.Credentials, nil
	})
}
