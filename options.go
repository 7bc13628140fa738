package webimg

import "github.com/rs/zerolog"

// Credential carries caller-supplied credentials for authentication
// challenges. It is consulted once per task: a second challenge after the
// credential has been sent is surfaced as an HTTP status error.
type Credential struct {
	Username string
	Password string
}

// TaskOptions configures a single DownloadTask. The zero value requests a
// plain, non-progressive download with default TLS validation.
type TaskOptions struct {
	// ProgressiveDecode enables partial-bitmap delivery while the payload is
	// still streaming in.
	ProgressiveDecode bool

	// IgnoreCachedResponse makes a response served from an intermediate HTTP
	// cache without revalidation complete empty, signalling "nothing new".
	IgnoreCachedResponse bool

	// AllowInvalidTLS accepts any server certificate. It applies to sessions
	// the task owns; the lifetime and TLS policy of a borrowed session are
	// the caller's obligation.
	AllowInvalidTLS bool

	// ContinueInBackground requests a bounded background-execution allowance
	// from the environment; if it expires before completion the task
	// self-cancels.
	ContinueInBackground bool

	// DecompressImages eagerly materializes the final bitmap's raster.
	// Animated payloads always bypass decompression.
	DecompressImages bool

	// Credential is used on the first authentication challenge, if set.
	Credential *Credential

	// Scale is the display scale factor recorded on decoded bitmaps.
	// Zero means 1.
	Scale float64

	// Codec overrides the decoder/encoder. Nil selects StdCodec.
	Codec Codec

	// Notifier receives the task's lifecycle events. Nil disables them.
	Notifier *Notifier

	// Environment supplies background-execution allowances. Nil selects
	// NopEnvironment.
	Environment Environment

	// Logger receives debug-level diagnostics. The zero value is discarded.
	Logger zerolog.Logger
}

// Callbacks groups the per-task delivery channels. All fields are optional.
//
// Exactly one terminal delivery occurs per task: either OnCompletion fires
// with final=true, or OnCancel fires — never both, never more than once.
// Callbacks are invoked on the task's owning goroutine; keep them fast or
// hand off.
type Callbacks struct {
	// OnProgress fires after every received chunk with the bytes accumulated
	// so far and the expected total (zero when the server declared none).
	OnProgress func(received, expected int64)

	// OnCompletion delivers decode results. Non-final deliveries carry
	// partial bitmaps during progressive decode; the final delivery carries
	// the bitmap and encoded bytes, or an error from the taxonomy in
	// errors.go.
	OnCompletion func(bm *Bitmap, data []byte, err error, final bool)

	// OnCancel fires when the task is cancelled, including the 304
	// Not Modified path.
	OnCancel func()
}

// cacheOptions collects the configurable collaborators of a Cache.
type cacheOptions struct {
	directory string
	config    CacheConfig
	codec     Codec
	notifier  *Notifier
	env       Environment
	logger    zerolog.Logger
}

// Option is a functional option for configuring a Cache.
type Option func(*cacheOptions)

// WithDirectory sets the root directory holding the cache namespace.
// The default is <user cache dir>/webimg.
func WithDirectory(dir string) Option {
	return func(o *cacheOptions) {
		o.directory = dir
	}
}

// WithConfig replaces the default cache configuration.
func WithConfig(cfg CacheConfig) Option {
	return func(o *cacheOptions) {
		o.config = cfg
	}
}

// WithCodec replaces the default StdCodec.
func WithCodec(c Codec) Option {
	return func(o *cacheOptions) {
		o.codec = c
	}
}

// WithNotifier attaches the notifier whose environment topics the cache
// subscribes to (low memory, terminate, background).
func WithNotifier(n *Notifier) Option {
	return func(o *cacheOptions) {
		o.notifier = n
	}
}

// WithEnvironment supplies the background-execution allowance source used
// for sweeps triggered by the background signal.
func WithEnvironment(env Environment) Option {
	return func(o *cacheOptions) {
		o.env = env
	}
}

// WithLogger attaches a logger for best-effort diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *cacheOptions) {
		o.logger = l
	}
}
