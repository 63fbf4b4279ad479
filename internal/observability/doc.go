// Package observability builds the process logger.
//
// Every component receives a *zap.Logger explicitly. Request handlers derive
// a child logger carrying the request ID with ForRequest.
package observability
