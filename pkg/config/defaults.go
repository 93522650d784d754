package config

// Scan defaults.
const (
	DefaultScanWorkers          = 0
	DefaultScanMaxContainerSize = "1GiB"
	DefaultScanOrder            = "origin"
	DefaultScanStallWarning     = "30s"
)

// Cache defaults.
const (
	DefaultCacheEnabled   = true
	DefaultCacheDirectory = ""
	DefaultCacheCompress  = false
)

// Logging defaults.
const (
	DefaultLoggingLevel = "info"
	DefaultLoggingJSON  = false
)

// Observability defaults.
const (
	DefaultOTLPEndpoint = ""
	DefaultOTLPInsecure = false
	DefaultMetricsAddr  = ""
)
