package webimg

import (
	"github.com/asaskevich/EventBus"

	"github.com/webimg/webimg/internal/dispatch"
)

// Download lifecycle topics. Each event carries the originating
// *DownloadTask as its only argument.
const (
	// TopicDownloadStarted fires once the request has been dispatched.
	TopicDownloadStarted = "webimg:download:started"

	// TopicDownloadResponse fires when acceptable response headers arrive.
	TopicDownloadResponse = "webimg:download:response"

	// TopicDownloadStopped fires when a task reaches a terminal state,
	// whether cancelled or finished.
	TopicDownloadStopped = "webimg:download:stopped"

	// TopicDownloadFinished fires when a task delivers its final completion.
	TopicDownloadFinished = "webimg:download:finished"
)

// Environment signal topics. The cache subscribes to these; the embedding
// application (or a test) publishes them. Events carry no arguments.
const (
	// TopicLowMemory asks caches to drop their in-memory entries.
	TopicLowMemory = "webimg:env:lowmemory"

	// TopicTerminate warns that the process is about to exit; caches run
	// their janitor sweep synchronously.
	TopicTerminate = "webimg:env:terminate"

	// TopicBackground signals that the application moved to the background;
	// caches sweep inside a bounded background-execution allowance.
	TopicBackground = "webimg:env:background"
)

// Notifier fans out lifecycle and environment signals over an event bus.
// Publishing never blocks the caller: events are handed to a serial delivery
// queue, so subscribers observe them asynchronously but in publish order.
type Notifier struct {
	bus     EventBus.Bus
	deliver *dispatch.Queue
}

// NewNotifier creates a notifier with its own bus and delivery queue.
func NewNotifier() *Notifier {
	return &Notifier{
		bus:     EventBus.New(),
		deliver: dispatch.New(),
	}
}

// Publish emits an event on topic. Safe on a nil notifier.
func (n *Notifier) Publish(topic string, args ...interface{}) {
	if n == nil {
		return
	}
	n.deliver.Async(func() {
		n.bus.Publish(topic, args...)
	})
}

// Subscribe registers fn for topic. The handler signature must match the
// published arguments, per the event bus contract.
func (n *Notifier) Subscribe(topic string, fn interface{}) error {
	return n.bus.Subscribe(topic, fn)
}

// Unsubscribe removes a previously registered handler.
func (n *Notifier) Unsubscribe(topic string, fn interface{}) error {
	return n.bus.Unsubscribe(topic, fn)
}

// Close stops the delivery queue after draining pending events.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.deliver.Close()
}

// Environment abstracts the platform facilities the engine needs: a bounded
// extra-execution allowance for work that must outlive backgrounding.
// Implementations must be safe for concurrent use.
type Environment interface {
	// BeginBackgroundTask requests a bounded background-execution allowance.
	// onExpire runs if the allowance runs out before the returned end
	// function is called. end is idempotent and releases the allowance.
	BeginBackgroundTask(name string, onExpire func()) (end func())
}

// NopEnvironment grants unbounded allowances that never expire. It is the
// default on platforms without a background-execution budget.
type NopEnvironment struct{}

// BeginBackgroundTask implements Environment.
func (NopEnvironment) BeginBackgroundTask(string, func()) func() {
	return func() {}
}
