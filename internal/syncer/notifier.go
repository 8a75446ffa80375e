package syncer

import "context"

// Notifier receives sync lifecycle events, typically to refresh an
// attached display or push a local notification.
type Notifier interface {
	SyncStarted(trigger string)
	SaleSynced(localID, serverSaleID int64)
	SyncFinished(report PassReport)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) SyncStarted(string)      {}
func (NopNotifier) SaleSynced(int64, int64) {}
func (NopNotifier) SyncFinished(PassReport) {}

// WakeRegistrar asks the platform to wake the process for a deferred
// sync when it is about to be suspended with work still queued.
type WakeRegistrar interface {
	Register(ctx context.Context, pending int64) error
}

// NopWakeRegistrar ignores wake requests.
type NopWakeRegistrar struct{}

func (NopWakeRegistrar) Register(context.Context, int64) error { return nil }
