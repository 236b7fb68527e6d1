package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

var _ Notifier = (Multi)(nil)

// Multi sends to every channel. A failing channel does not stop the others; the returned error
// joins one DeliveryError per failed channel.
type Multi []Notifier

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Name()
	}
	return strings.Join(names, ",")
}

func (m Multi) Notify(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			var derr *DeliveryError
			if !errors.As(err, &derr) {
				err = &DeliveryError{Channel: notifier.Name(), Err: err}
			}
			slog.Error("Notification delivery failed", "channel", notifier.Name(), "run_id", n.RunID, "error", err)
			errs = append(errs, err)
			continue
		}
		slog.Info("Notification delivered", "channel", notifier.Name(), "run_id", n.RunID, "contract", n.Contract, "alerts", len(n.AlertIDs))
	}
	return errors.Join(errs...)
}
