package webimg

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TaskState is the lifecycle state of a DownloadTask. Transitions are
// monotonic: Idle → Executing → {Cancelled | Finished}. Both Cancelled and
// Finished are terminal.
type TaskState int32

// Task lifecycle states.
const (
	TaskIdle TaskState = iota
	TaskExecuting
	TaskCancelled
	TaskFinished
)

// String returns the state name.
func (s TaskState) String() string {
	switch s {
	case TaskIdle:
		return "idle"
	case TaskExecuting:
		return "executing"
	case TaskCancelled:
		return "cancelled"
	case TaskFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// terminal reports whether the state admits no further transitions.
func (s TaskState) terminal() bool {
	return s == TaskCancelled || s == TaskFinished
}

// responseHeaderTimeout bounds the wait for initial response headers on
// sessions the task owns. There is no per-chunk timeout; cancellation is the
// only mid-flight abort path.
const responseHeaderTimeout = 15 * time.Second

// readChunkSize is the body read granularity.
const readChunkSize = 16 * 1024

// DownloadTask owns one request's network lifecycle: issue, stream,
// progressively decode, authenticate, cancel, complete exactly once.
//
// All network-originated events for a task (headers, chunks, completion) are
// processed serialized on the task's run goroutine. Cancel may be called from
// any goroutine; its effect is marshaled onto the run goroutine when one
// exists, and applied inline otherwise.
type DownloadTask struct {
	req  *http.Request
	opts TaskOptions
	cbs  Callbacks

	codec    Codec
	notifier *Notifier
	env      Environment
	log      zerolog.Logger

	session     *http.Client
	ownsSession bool

	mu       sync.Mutex
	state    TaskState
	cancelFn context.CancelFunc

	// Fields below are touched only by the run goroutine once Executing.
	buf       []byte
	expected  int64
	meta      Meta
	metaKnown bool
	authSent  bool

	releaseOnce   sync.Once
	endBackground func()
}

// NewDownloadTask builds a task for one request. A nil session makes the
// task create and own a session bound to its lifetime; a non-nil session is
// borrowed and must outlive every task using it. Request validity is checked
// at Start, which reports a ConstructionError through the completion
// callback.
func NewDownloadTask(req *http.Request, session *http.Client, opts TaskOptions, cbs Callbacks) *DownloadTask {
	t := &DownloadTask{
		req:      req,
		opts:     opts,
		cbs:      cbs,
		codec:    opts.Codec,
		notifier: opts.Notifier,
		env:      opts.Environment,
		log:      opts.Logger,
		session:  session,
	}
	if t.codec == nil {
		t.codec = StdCodec{}
	}
	if t.env == nil {
		t.env = NopEnvironment{}
	}
	return t
}

// Request returns the task's request.
func (t *DownloadTask) Request() *http.Request {
	return t.req
}

// State returns the task's current lifecycle state.
func (t *DownloadTask) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start issues the request and transitions the task to Executing. On a task
// that was cancelled before starting, Start is a no-op: no I/O is issued.
// An unusable request delivers a final completion with a ConstructionError
// synchronously, with no cancel callback.
func (t *DownloadTask) Start() {
	t.mu.Lock()
	if t.state != TaskIdle {
		t.mu.Unlock()
		return
	}

	if t.req == nil || t.req.URL == nil {
		t.state = TaskFinished
		t.mu.Unlock()
		t.deliverCompletion(nil, nil, &ConstructionError{Err: ErrInvalidRequest}, true)
		t.release()
		return
	}

	if t.session == nil {
		t.session = t.newOwnedSession()
		t.ownsSession = true
	}

	ctx, cancel := context.WithCancel(t.req.Context())
	t.cancelFn = cancel
	t.state = TaskExecuting

	if t.opts.ContinueInBackground {
		t.endBackground = t.env.BeginBackgroundTask("webimg.download", t.Cancel)
	}
	t.mu.Unlock()

	t.notify(TopicDownloadStarted)
	go t.run(ctx)
}

// Cancel requests cancellation. It is safe to call from any goroutine, any
// number of times, at any point before a terminal state. The cancel callback
// fires exactly once and the completion callback never fires for a cancelled
// task. On a task that never started, cancellation runs inline.
func (t *DownloadTask) Cancel() {
	t.mu.Lock()
	switch t.state {
	case TaskCancelled, TaskFinished:
		t.mu.Unlock()
		return
	case TaskIdle:
		// Never started: no owning goroutine exists, cancel inline.
		t.state = TaskFinished
		t.mu.Unlock()
		if t.cbs.OnCancel != nil {
			t.cbs.OnCancel()
		}
		t.notify(TopicDownloadStopped)
		t.release()
		return
	default:
		cancel := t.cancelFn
		t.mu.Unlock()
		// Marshal the abort onto the run goroutine: the context cancellation
		// interrupts the in-flight network call there.
		cancel()
	}
}

// run is the task's owning execution context: it performs the network call,
// consumes the body, and is the only place the state advances past
// Executing.
func (t *DownloadTask) run(ctx context.Context) {
	resp, err := t.issue(ctx, t.req)
	if err != nil {
		if ctx.Err() != nil {
			t.terminateCancelled()
			return
		}
		t.terminateFinished(nil, nil, &TransportError{Err: err})
		return
	}

	// First authentication failure: use the caller-supplied credential if
	// present; a repeated failure falls through to the status-error path.
	if resp.StatusCode == http.StatusUnauthorized && t.opts.Credential != nil && !t.authSent {
		drain(resp)
		t.authSent = true
		authed := t.req.Clone(ctx)
		authed.SetBasicAuth(t.opts.Credential.Username, t.opts.Credential.Password)
		resp, err = t.issue(ctx, authed)
		if err != nil {
			if ctx.Err() != nil {
				t.terminateCancelled()
				return
			}
			t.terminateFinished(nil, nil, &TransportError{Err: err})
			return
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		// Nothing new; the caller should reuse its cached copy. Routed
		// through the cancel path, never surfaced as a failure.
		drain(resp)
		t.terminateCancelled()
		return
	case resp.StatusCode >= http.StatusBadRequest:
		drain(resp)
		t.terminateFinished(nil, nil, &HTTPStatusError{StatusCode: resp.StatusCode})
		return
	}

	t.acceptResponse(resp)

	if err := t.consume(ctx, resp); err != nil {
		resp.Body.Close()
		if ctx.Err() != nil {
			t.terminateCancelled()
		} else {
			t.terminateFinished(nil, nil, &TransportError{Err: err})
		}
		return
	}
	resp.Body.Close()

	if ctx.Err() != nil {
		t.terminateCancelled()
		return
	}
	t.completeDownload(resp)
}

// issue performs one HTTP round trip bound to the task context.
func (t *DownloadTask) issue(ctx context.Context, req *http.Request) (*http.Response, error) {
	return t.session.Do(req.Clone(ctx))
}

// acceptResponse sizes the accumulation buffer to the declared content
// length (zero if absent) and emits the response-received signal.
func (t *DownloadTask) acceptResponse(resp *http.Response) {
	expected := resp.ContentLength
	if expected < 0 {
		expected = 0
	}
	t.expected = expected
	t.buf = make([]byte, 0, expected)
	t.notify(TopicDownloadResponse)
	if t.cbs.OnProgress != nil {
		t.cbs.OnProgress(0, expected)
	}
}

// consume streams the body chunk by chunk, feeding progressive decode and
// progress reporting.
func (t *DownloadTask) consume(ctx context.Context, resp *http.Response) error {
	chunk := make([]byte, readChunkSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			t.handleChunk(chunk[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// handleChunk appends received bytes and, under ProgressiveDecode, records
// natural dimensions from the first decodable prefix and delivers non-final
// partial bitmaps while the payload is incomplete.
func (t *DownloadTask) handleChunk(chunk []byte) {
	t.buf = append(t.buf, chunk...)

	if t.opts.ProgressiveDecode {
		if !t.metaKnown {
			if meta, ok := t.codec.DecodeMeta(t.buf); ok {
				t.meta = meta
				t.metaKnown = true
			}
		}
		if t.metaKnown && t.expected > 0 && int64(len(t.buf)) < t.expected {
			if partial, err := t.codec.Decode(t.buf, t.opts.Scale); err == nil && partial != nil {
				if t.opts.DecompressImages && !partial.Animated() {
					partial = t.codec.Decompress(partial)
				}
				t.deliverCompletion(partial, nil, nil, false)
			}
		}
	}

	if t.cbs.OnProgress != nil {
		t.cbs.OnProgress(int64(len(t.buf)), t.expected)
	}
}

// completeDownload runs once the network layer signals done without error.
func (t *DownloadTask) completeDownload(resp *http.Response) {
	if t.opts.IgnoreCachedResponse && servedFromCache(resp) {
		// Explicitly empty final completion: nothing new, the caller's
		// cached copy stands.
		t.terminateFinished(nil, nil, nil)
		return
	}

	if len(t.buf) == 0 {
		t.terminateFinished(nil, nil, &DecodeError{Reason: "zero-size payload"})
		return
	}

	bm, err := t.codec.Decode(t.buf, t.opts.Scale)
	if err != nil {
		t.terminateFinished(nil, nil, &DecodeError{Reason: "final payload", Err: err})
		return
	}
	// Animated payloads bypass eager decompression.
	if t.opts.DecompressImages && !bm.Animated() {
		bm = t.codec.Decompress(bm)
	}
	t.terminateFinished(bm, t.buf, nil)
}

// terminateFinished performs the exactly-once final completion delivery.
func (t *DownloadTask) terminateFinished(bm *Bitmap, data []byte, err error) {
	t.mu.Lock()
	if t.state.terminal() {
		t.mu.Unlock()
		return
	}
	t.state = TaskFinished
	t.mu.Unlock()

	if err != nil {
		t.log.Debug().Err(err).Stringer("url", t.req.URL).Msg("download failed")
	}
	t.deliverCompletion(bm, data, err, true)
	t.notify(TopicDownloadStopped)
	t.notify(TopicDownloadFinished)
	t.release()
}

// terminateCancelled performs the exactly-once cancel delivery.
func (t *DownloadTask) terminateCancelled() {
	t.mu.Lock()
	if t.state.terminal() {
		t.mu.Unlock()
		return
	}
	t.state = TaskCancelled
	t.mu.Unlock()

	if t.cbs.OnCancel != nil {
		t.cbs.OnCancel()
	}
	t.notify(TopicDownloadStopped)
	t.release()
}

func (t *DownloadTask) deliverCompletion(bm *Bitmap, data []byte, err error, final bool) {
	if t.cbs.OnCompletion != nil {
		t.cbs.OnCompletion(bm, data, err, final)
	}
}

// release frees buffers, the background allowance, and any owned session.
// It is idempotent under repeated terminal-state entry attempts.
func (t *DownloadTask) release() {
	t.releaseOnce.Do(func() {
		t.buf = nil
		if t.endBackground != nil {
			t.endBackground()
		}
		t.mu.Lock()
		session, owned := t.session, t.ownsSession
		t.session = nil
		t.mu.Unlock()
		if owned && session != nil {
			session.CloseIdleConnections()
		}
	})
}

func (t *DownloadTask) notify(topic string) {
	t.notifier.Publish(topic, t)
}

// newOwnedSession builds the session a task owns for its lifetime. Server
// trust is accepted unconditionally when AllowInvalidTLS is set; otherwise
// default validation applies.
func (t *DownloadTask) newOwnedSession() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: responseHeaderTimeout,
	}
	if t.opts.AllowInvalidTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Transport: tr}
}

// servedFromCache reports whether a response came out of an intermediate
// HTTP cache without revalidation, using the conventional header signals.
func servedFromCache(resp *http.Response) bool {
	if age := resp.Header.Get("Age"); age != "" {
		if n, err := strconv.Atoi(age); err == nil && n > 0 {
			return true
		}
	}
	if strings.Contains(strings.ToUpper(resp.Header.Get("X-Cache")), "HIT") {
		return true
	}
	return resp.Header.Get("X-From-Cache") == "1"
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
