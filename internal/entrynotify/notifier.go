// Package entrynotify tees recorded entries to an external observer ahead
// of broadcast.
package entrynotify

import (
	"context"

	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/types"
)

// NotificationSender accepts entry notifications without blocking.
type NotificationSender interface {
	Send(types.EntryNotification) bool
}

// EntrySender accepts entries without blocking.
type EntrySender interface {
	Send(types.Entry) bool
}

// Notifier publishes a notification for every entry and then forwards the
// entry to broadcast, keeping the order it received them in.
type Notifier struct {
	logger   log.Logger
	in       <-chan types.Entry
	observer NotificationSender
	out      EntrySender

	slot  uint64
	index int
}

// NewNotifier returns a notifier.
func NewNotifier(logger log.Logger, in <-chan types.Entry, observer NotificationSender, out EntrySender) *Notifier {
	return &Notifier{
		logger:   logger,
		in:       in,
		observer: observer,
		out:      out,
	}
}

// Run relays entries until ctx is done or in is closed. A refused
// notification is logged and does not hold up broadcast.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-n.in:
			if !ok {
				return nil
			}
			if e.Slot != n.slot {
				n.slot, n.index = e.Slot, 0
			}
			entry := e
			if !n.observer.Send(types.EntryNotification{Slot: e.Slot, Index: n.index, Entry: &entry}) {
				n.logger.Debug("entry notification dropped", "slot", e.Slot, "index", n.index)
			}
			n.index++

			if !n.out.Send(e) {
				return nil
			}
		}
	}
}
