package app

import (
	"context"
	"time"

	"homeworkbot/internal/eventbus"
	"homeworkbot/internal/poller"
	"homeworkbot/internal/storage"
	logx "homeworkbot/pkg/logx"
)

// deliveryFromCycle maps a cycle that handed text to the notifier to a
// journal entry. Other cycles produce nothing.
func deliveryFromCycle(res poller.CycleResult) (storage.Delivery, bool) {
	if res.Outcome != poller.OutcomeNotified {
		return storage.Delivery{}, false
	}
	d := storage.Delivery{
		At:      res.Started,
		CycleID: res.ID,
		Kind:    storage.KindStatus,
		Text:    res.Message,
	}
	if res.Failed() {
		d.Kind = storage.KindFailure
		d.Error = res.ErrText
	}
	return d, true
}

// runJournal appends notified cycles to st until ctx is done.
func runJournal(ctx context.Context, st storage.Store, events <-chan eventbus.Event, log logx.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type != eventbus.TypeCycleDone {
				continue
			}
			res, ok := e.Data.(poller.CycleResult)
			if !ok {
				continue
			}
			d, ok := deliveryFromCycle(res)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := st.AppendDelivery(wctx, d)
			cancel()
			if err != nil {
				log.Warn("journal append failed", logx.String("cycle", res.ID), logx.Err(err))
			}
		}
	}
}
