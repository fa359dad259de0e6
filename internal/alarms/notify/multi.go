package notify

import (
	"context"

	alarmapp "hmi-core/internal/alarms/application"
)

// MultiNotifier dispatches alarm events to multiple notifiers.
type MultiNotifier struct {
	notifiers []alarmapp.Notifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...alarmapp.Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Add appends a notifier. Not safe for concurrent use with Notify;
// call during wiring only.
func (m *MultiNotifier) Add(notifier alarmapp.Notifier) {
	if m == nil || notifier == nil {
		return
	}
	m.notifiers = append(m.notifiers, notifier)
}

// Notify forwards events to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, event alarmapp.Event) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.Notify(ctx, event)
		}
	}
}
