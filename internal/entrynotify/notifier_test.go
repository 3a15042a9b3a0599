package entrynotify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

type sink[T any] struct {
	refuse bool
	got    []T
}

func (s *sink[T]) Send(v T) bool {
	if s.refuse {
		return false
	}
	s.got = append(s.got, v)
	return true
}

func TestNotifierPreservesOrder(t *testing.T) {
	in := make(chan types.Entry, 4)
	in <- types.Entry{Slot: 1, TickHeight: 10}
	in <- types.Entry{Slot: 1, TickHeight: 11}
	in <- types.Entry{Slot: 2, TickHeight: 12}
	close(in)

	observer := &sink[types.EntryNotification]{}
	out := &sink[types.Entry]{}
	require.NoError(t, NewNotifier(log.TestingLogger(), in, observer, out).Run(context.Background()))

	require.Len(t, out.got, 3)
	require.Len(t, observer.got, 3)
	for i, e := range out.got {
		assert.Equal(t, e.TickHeight, observer.got[i].Entry.TickHeight)
	}
	assert.Equal(t, []int{0, 1, 0}, []int{observer.got[0].Index, observer.got[1].Index, observer.got[2].Index})
	assert.EqualValues(t, 2, observer.got[2].Slot)
}

func TestNotifierObserverDoesNotBlockBroadcast(t *testing.T) {
	in := make(chan types.Entry, 1)
	in <- types.Entry{Slot: 1}
	close(in)

	out := &sink[types.Entry]{}
	require.NoError(t, NewNotifier(log.TestingLogger(), in, &sink[types.EntryNotification]{refuse: true}, out).Run(context.Background()))
	assert.Len(t, out.got, 1)
}
