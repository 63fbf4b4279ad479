package session

// ResourceConfig describes the backend resources a server context talks to.
// It is loaded once at startup and shared read-only by every request.
type ResourceConfig struct {
	Auth    AuthConfig
	Storage StorageConfig
	API     APIConfig
}

// AuthConfig identifies the user pool and identity pool.
type AuthConfig struct {
	Region           string
	UserPoolID       string
	UserPoolClientID string
	IdentityPoolID   string
	AllowGuestAccess bool
}

// StorageConfig identifies the bucket used for user files.
type StorageConfig struct {
	Bucket string
	Region string
}

// APIConfig identifies the GraphQL endpoint.
type APIConfig struct {
	Endpoint        string
	Region          string
	DefaultAuthMode string
	APIKey          string
}
