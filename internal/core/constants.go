package core

import "time"

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Server defaults
const (
	DefaultPort         = "8080"
	DefaultGinMode      = "release"
	DefaultRegistryPath = "models.json"
)

// Dispatch config constants
const (
	DefaultMaxRetries = 3
)

// Health tracker backoff defaults: capped exponential, tunable via env.
const (
	DefaultBackoffBase   = 30 * time.Second
	DefaultBackoffFactor = 2.0
	DefaultBackoffMax    = 10 * time.Minute
)

// HTTP client config constants
const (
	HTTPMaxIdleConns          = 500
	HTTPMaxIdleConnsPerHost   = 100
	HTTPMaxConnsPerHost       = 200
	HTTPIdleConnTimeout       = 600 * time.Second
	HTTPTLSHandshakeTimeout   = 30 * time.Second
	HTTPResponseHeaderTimeout = 30 * time.Second
	HTTPExpectContinueTimeout = 5 * time.Second
	HTTPRequestTimeout        = 2 * time.Minute
)

// Cache config constants
const (
	CacheDefaultCapacity = 1000
	CacheCleanupInterval = 5 * time.Minute
	PromptCacheTTL       = 30 * time.Minute
	CacheKeyVersion      = "v1"
)

// Stats and monitoring constants
const (
	StatsFilePath        = "stats.json"
	MinSaveInterval      = 5 * time.Second
	HistoryBufferSize    = 1000
	HistoryBatchSize     = 100
	HistoryFlushInterval = 100 * time.Millisecond
)

// Upstream response limits
const (
	MaxResponseBodySize = 10 * 1024 * 1024
)

// HTTP header constants
const (
	HeaderContentType   = "Content-Type"
	HeaderAuthorization = "Authorization"
	HeaderXAPIKey       = "x-api-key"
	ContentTypeJSON     = "application/json"
	AuthBearerPrefix    = "Bearer "
	CORSMaxAge          = "86400"
)

// Models list response constants
const (
	ModelObjectType = "model"
	ListObjectType  = "list"
	ModelOwner      = "modelgate"
)

// Logging config constants
const (
	MaxDebugFilePathLength = 260
)

// File permission constants
const (
	FilePermissionReadWrite = 0644
)

// Time format constants
const (
	TimeFormatDateTime = "2006-01-02 15:04:05"
)
