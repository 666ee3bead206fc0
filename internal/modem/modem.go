// Package modem is the seam between the relay and the radio hardware. The
// rest of the system only sees the two small interfaces here; the concrete
// device integration plugs in behind them.
package modem

import (
	"context"

	"smsrelay/pkg/logx"
)

// Sender submits an outbound SMS through the device.
type Sender interface {
	Send(ctx context.Context, phoneNumber, content string) error
}

// Status describes the cellular link as shown on the dashboard.
type Status struct {
	Operator    string `json:"operator"`
	SignalLevel int    `json:"signal_level"`
}

// StatusProvider reports the current link state.
type StatusProvider interface {
	Status(ctx context.Context) (Status, error)
}

type Config struct {
	Device string
	Baud   int
}

// Stub is a loopback device for boxes without a radio attached and for
// tests. Sends succeed and only log; status reports a fixed healthy link.
type Stub struct {
	log logx.Logger
}

func NewStub(log logx.Logger) *Stub {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Stub{log: log}
}

func (s *Stub) Send(ctx context.Context, phoneNumber, content string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.log.Info("stub modem send",
		logx.String("to", phoneNumber),
		logx.Int("chars", len([]rune(content))))
	return nil
}

func (s *Stub) Status(ctx context.Context) (Status, error) {
	return Status{Operator: "STUB", SignalLevel: 4}, nil
}
