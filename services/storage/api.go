package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/upb/vision-gateway/cognito"
	"github.com/upb/vision-gateway/session"
)

var (
	// ErrNotConfigured is returned when no bucket is configured.
	ErrNotConfigured = errors.New("storage bucket is not configured")

	// ErrInvalidAccessLevel is returned for an unknown access level.
	ErrInvalidAccessLevel = errors.New("invalid access level")
)

// AccessLevel scopes a listing to a key prefix.
type AccessLevel string

const (
	AccessGuest     AccessLevel = "guest"
	AccessProtected AccessLevel = "protected"
	AccessPrivate   AccessLevel = "private"
)

// DefaultPageSize is used when ListInput.PageSize is not set.
const DefaultPageSize = 1000

// ListInput selects the objects to list.
type ListInput struct {
	Prefix           string      `json:"prefix"`
	AccessLevel      AccessLevel `json:"accessLevel" validate:"omitempty,oneof=guest protected private"`
	TargetIdentityID string      `json:"targetIdentityId"`
	PageSize         int32       `json:"pageSize" validate:"omitempty,min=1,max=1000"`
	NextToken        string      `json:"nextToken"`
	ListAll          bool        `json:"listAll"`
}

// Item is one listed object. Key is relative to the access level prefix.
type Item struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"eTag,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// ListOutput is a page of items.
type ListOutput struct {
	Items     []Item `json:"items"`
	NextToken string `json:"nextToken,omitempty"`
}

// S3API is the subset of the S3 client used for listing.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ClientFactory builds an S3 client that signs with creds.
type ClientFactory func(creds aws.CredentialsProvider, region string) S3API

// NewS3ClientFactory returns a factory building real S3 clients from base.
func NewS3ClientFactory(base aws.Config) ClientFactory {
	return func(creds aws.CredentialsProvider, region string) S3API {
		return s3.NewFromConfig(base, func(o *s3.Options) {
			o.Credentials = creds
			if region != "" {
				o.Region = region
			}
		})
	}
}

// API lists objects on behalf of the request's identity.
type API struct {
	newClient ClientFactory
	logger    *zap.Logger
}

// NewAPI creates the storage API.
func NewAPI(newClient ClientFactory, logger *zap.Logger) *API {
	return &API{newClient: newClient, logger: logger}
}

// List lists objects under the access level prefix using the credentials of
// the server context.
func (a *API) List(ctx context.Context, spec session.ContextSpec, in ListInput) (*ListOutput, error) {
	cfg, err := spec.Config()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Bucket == "" {
		return nil, ErrNotConfigured
	}
	lib, err := spec.Library()
	if err != nil {
		return nil, err
	}

	tokens, err := lib.Auth.TokenProvider.FetchTokens(ctx, session.FetchTokensOptions{})
	if err != nil {
		return nil, err
	}
	if lib.Auth.CredentialsProvider == nil {
		return nil, cognito.ErrNoCredentials
	}
	creds, err := lib.Auth.CredentialsProvider.FetchCredentials(ctx, session.FetchCredentialsOptions{Tokens: tokens})
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, cognito.ErrNoCredentials
	}

	base, err := accessPrefix(in.AccessLevel, creds.IdentityID, in.TargetIdentityID)
	if err != nil {
		return nil, err
	}

	region := cfg.Storage.Region
	if region == "" {
		region = cfg.Auth.Region
	}
	client := a.newClient(credentials.NewStaticCredentialsProvider(
		creds.Credentials.AccessKeyID,
		creds.Credentials.SecretAccessKey,
		creds.Credentials.SessionToken,
	), region)

	pageSize := in.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(cfg.Storage.Bucket),
		Prefix:  aws.String(base + in.Prefix),
		MaxKeys: aws.Int32(pageSize),
	}
	if in.NextToken != "" && !in.ListAll {
		input.ContinuationToken = aws.String(in.NextToken)
	}

	a.logger.Debug("listing storage",
		zap.String("bucket", cfg.Storage.Bucket),
		zap.String("prefix", aws.ToString(input.Prefix)),
		zap.Bool("list_all", in.ListAll),
	)

	out := &ListOutput{Items: []Item{}}
	if !in.ListAll {
		page, err := client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, err
		}
		out.Items = appendItems(out.Items, page, base)
		if aws.ToBool(page.IsTruncated) {
			out.NextToken = aws.ToString(page.NextContinuationToken)
		}
		return out, nil
	}

	paginator := s3.NewListObjectsV2Paginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out.Items = appendItems(out.Items, page, base)
	}
	return out, nil
}

func accessPrefix(level AccessLevel, identityID, targetIdentityID string) (string, error) {
	switch level {
	case "", AccessGuest:
		return "public/", nil
	case AccessProtected:
		if targetIdentityID != "" {
			identityID = targetIdentityID
		}
		return fmt.Sprintf("protected/%s/", identityID), nil
	case AccessPrivate:
		return fmt.Sprintf("private/%s/", identityID), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAccessLevel, level)
}

func appendItems(items []Item, page *s3.ListObjectsV2Output, base string) []Item {
	for _, obj := range page.Contents {
		item := Item{
			Key:  strings.TrimPrefix(aws.ToString(obj.Key), base),
			Size: aws.ToInt64(obj.Size),
			ETag: aws.ToString(obj.ETag),
		}
		if obj.LastModified != nil {
			item.LastModified = *obj.LastModified
		}
		items = append(items, item)
	}
	return items
}
