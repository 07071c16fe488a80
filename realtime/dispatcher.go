package realtime

import (
	"encoding/json"
	"log/slog"
)

// Dispatcher fans a payload out to the live channels of an explicit
// recipient list. Delivery is best effort: offline recipients are skipped,
// failed sends are logged and the broken channel is dropped from the
// registry. Nothing propagates back to the caller, which has already
// committed its state change by the time it broadcasts.
type Dispatcher struct {
	Logger   *slog.Logger
	Registry *Registry
}

// Broadcast serializes the payload once and pushes it to every channel of
// every recipient. It returns after the sends are initiated; a hung
// connection is bounded by the channel's own write deadline, not awaited
// here.
func (d *Dispatcher) Broadcast(recipientIDs []string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		d.Logger.Error("Could not encode push payload", "error", err.Error())
		return
	}
	for _, userID := range recipientIDs {
		for _, ch := range d.Registry.ChannelsFor(userID) {
			if err := ch.Send(data); err != nil {
				d.Logger.Info("Dropping broken channel", "user_id", userID, "error", err.Error())
				d.Registry.Unregister(ch)
				_ = ch.Close()
			}
		}
	}
}
