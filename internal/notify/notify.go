// Package notify delivers triggered alerts to configured channels. Delivery
// is fire-and-forget: a failing channel is logged and never blocks or fails
// rule evaluation.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Alert is the payload delivered to every channel.
type Alert struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"rule_id"`
	RuleName    string         `json:"rule_name"`
	RuleType    string         `json:"rule_type"`
	Severity    string         `json:"severity"`
	Summary     string         `json:"summary"`
	Details     map[string]any `json:"details,omitempty"`
	TriggeredAt time.Time      `json:"triggered_at"`
}

// Notifier delivers one alert to one channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, alert *Alert) error
}

// Dispatcher fans an alert out to the channels a rule names. Unknown channel
// names fall back to the log channel.
type Dispatcher struct {
	channels map[string]Notifier
	fallback Notifier
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(timeout time.Duration, channels ...Notifier) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		channels: make(map[string]Notifier, len(channels)),
		fallback: NewLogChannel(),
		timeout:  timeout,
		logger:   slog.Default().With("component", "notify"),
	}
	for _, ch := range channels {
		d.channels[ch.Name()] = ch
	}
	return d
}

// Dispatch delivers the alert to each named channel once. Errors are logged
// and swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *Alert, channelNames []string) {
	if len(channelNames) == 0 {
		channelNames = []string{d.fallback.Name()}
	}

	for _, name := range channelNames {
		ch, ok := d.channels[name]
		if !ok {
			ch = d.fallback
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := ch.Send(sendCtx, alert)
		cancel()
		if err != nil {
			d.logger.Warn("alert delivery failed",
				"channel", name,
				"rule_name", alert.RuleName,
				"error", err)
		}
	}
}
