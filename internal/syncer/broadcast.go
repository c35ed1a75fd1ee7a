package syncer

import (
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/neptus-sync/internal/model"
)

// Listener receives status snapshots. It runs on the publishing goroutine and should return quickly.
type Listener func(model.SyncStatus)

type subscription struct {
	id uint64
	fn Listener
}

// Broadcaster fans SyncStatus snapshots out to subscribers in registration order.
type Broadcaster struct {
	log *zap.Logger

	mu   sync.Mutex
	next uint64
	subs []subscription
}

// NewBroadcaster returns an empty broadcaster. A nil logger is replaced by a no-op one.
func NewBroadcaster(log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{log: log}
}

// Subscribe registers fn and returns a function that removes exactly that
// registration. Calling the returned function more than once is a no-op.
func (b *Broadcaster) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of current subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers s to every current subscriber. Listeners may subscribe or
// unsubscribe from inside the callback; changes apply from the next Publish.
func (b *Broadcaster) Publish(s model.SyncStatus) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		b.deliver(sub, s)
	}
}

// deliver isolates a panicking listener so the rest still get the snapshot.
func (b *Broadcaster) deliver(sub subscription, s model.SyncStatus) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("status listener panic",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
				zap.Uint64("subscription", sub.id),
			)
		}
	}()
	sub.fn(s)
}
