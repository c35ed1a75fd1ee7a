package syncer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/neptus-sync/internal/model"
)

func TestBroadcaster_RegistrationOrder(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster(zaptest.NewLogger(t))

	var order []string
	b.Subscribe(func(model.SyncStatus) { order = append(order, "first") })
	b.Subscribe(func(model.SyncStatus) { order = append(order, "second") })
	b.Subscribe(func(model.SyncStatus) { order = append(order, "third") })

	b.Publish(model.SyncStatus{PendingCount: 1})
	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBroadcaster_UnsubscribeRemovesOnlyThatListener(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster(nil)

	var a, c int
	same := func(model.SyncStatus) { a++ }
	unsubA := b.Subscribe(same)
	b.Subscribe(same)
	b.Subscribe(func(model.SyncStatus) { c++ })

	unsubA()
	unsubA()
	require.Equal(t, 2, b.Len(), "unsubscribing twice is a no-op")

	b.Publish(model.SyncStatus{})
	require.Equal(t, 1, a, "the second registration of the same func still fires")
	require.Equal(t, 1, c)
}

func TestBroadcaster_PanickingListenerIsIsolated(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster(zaptest.NewLogger(t))

	var got []model.SyncStatus
	b.Subscribe(func(model.SyncStatus) { panic("listener bug") })
	b.Subscribe(func(s model.SyncStatus) { got = append(got, s) })

	require.NotPanics(t, func() { b.Publish(model.SyncStatus{PendingCount: 4}) })
	require.Len(t, got, 1)
	require.Equal(t, 4, got[0].PendingCount)
}

func TestBroadcaster_SubscribeDuringPublish(t *testing.T) {
	t.Parallel()
	b := NewBroadcaster(nil)

	var late int
	b.Subscribe(func(model.SyncStatus) {
		b.Subscribe(func(model.SyncStatus) { late++ })
	})

	b.Publish(model.SyncStatus{})
	require.Zero(t, late, "new listeners start with the next publish")
	b.Publish(model.SyncStatus{})
	require.Equal(t, 1, late)
}
