package constants

import (
	"time"
)

// Upload limits enforced before a document reaches the network
const (
	// MaxDocumentSize - largest accepted source document (10 MiB, inclusive)
	MaxDocumentSize = 10 * 1024 * 1024

	// MaxTemplateSize - largest template source the service accepts (2 MB)
	// The client does not enforce this; the stub service does.
	MaxTemplateSize = 2 * 1024 * 1024
)

// Accepted source document types
const (
	MIMETypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMETypeDocm = "application/vnd.ms-word.document.macroEnabled.12"

	ExtDocx = ".docx"
	ExtDocm = ".docm"
)

// Conversion job timing
const (
	// DefaultConvertTimeout - hard ceiling on one conversion request (180 seconds)
	// The request context is cancelled when it fires.
	DefaultConvertTimeout = 180 * time.Second

	// MaxConvertTimeout - upper bound accepted from configuration (30 minutes)
	MaxConvertTimeout = 30 * time.Minute
)

// Client-reported progress checkpoints (percent)
const (
	ProgressDispatched = 20 // request built and dispatched
	ProgressHandedOff  = 40 // multipart body fully written
	ProgressAcked      = 60 // response headers received
	ProgressComplete   = 100
)

// Templates
const (
	// DefaultTemplateID - built-in template used when nothing else is selected
	DefaultTemplateID = "ieee_conference"

	// OneColumnTemplateID - second built-in template
	OneColumnTemplateID = "onecolumn"

	// CustomTemplatePrefix - prefix the service puts on uploaded template ids
	CustomTemplatePrefix = "custom_"
)

// Event bus sizing
const (
	// EventBusDefaultBuffer - default buffer size for event channels
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer - maximum buffer size for event channels
	EventBusMaxBuffer = 4096
)

// History
const (
	// DefaultHistoryCollection - Firestore collection shared with the web client
	DefaultHistoryCollection = "lich_su_chuyen_doi"

	// HistoryTable - SQL table holding conversion history
	HistoryTable = "conversion_history"

	// DefaultHistoryLimit - rows returned by history queries when no limit is given
	DefaultHistoryLimit = 50

	// FuzzyMatchMaxDistance - maximum Levenshtein distance for fuzzy name search
	FuzzyMatchMaxDistance = 2
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (30 seconds)
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPRequestTimeout - time allowed for short API calls (templates, health)
	HTTPRequestTimeout = 60 * time.Second
)

// Retry defaults for idempotent requests
const (
	RetryWaitMin = 500 * time.Millisecond
	RetryWaitMax = 10 * time.Second
)

// Disk space
const (
	// DiskSpaceBufferPercent - extra headroom required beyond the archive size
	DiskSpaceBufferPercent = 0.15
)
