package constants

import "time"

const (
	ServiceName = "inbox-service"
	Version     = "1.0.0"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMongoDB  = "mongodb"
	BackendMemory   = "memory"
)

const (
	SignatureHeader = "X-Signature"
	RequestIDHeader = "X-Request-ID"
)

const (
	CacheKeyStats    = "stats:v1"
	CacheKeyStatsGen = "stats:gen"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
	TopSenders   = 10
)

const (
	ShutdownTimeout = 10 * time.Second
	ProbeTimeout    = 2 * time.Second
)

// Gin context keys used to pass webhook results to the request logger.
const (
	CtxKeyMessageID = "webhook.message_id"
	CtxKeyDuplicate = "webhook.dup"
	CtxKeyResult    = "webhook.result"
)
