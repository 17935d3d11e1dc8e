// Package events provides reference EventSink implementations for the
// engine's swap notifications.
package events

import "github.com/defiswap/defiswap-core-go/engine"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ChannelSink fans swap events out over a buffered channel. Delivery is
// fire-and-forget: when the buffer is full the event is dropped rather than
// blocking the engine.
type ChannelSink struct {
	events chan engine.SwapEvent
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(bufferSize uint) *ChannelSink {
	return &ChannelSink{events: make(chan engine.SwapEvent, bufferSize)}
}

// Events returns the read side of the sink.
func (s *ChannelSink) Events() <-chan engine.SwapEvent {
	return s.events
}

// NotifySwap implements engine.EventSink.
func (s *ChannelSink) NotifySwap(event engine.SwapEvent) {
	select {
	case s.events <- event:
	default:
		// Buffer full; the core never blocks on notification.
	}
}

// LogSink writes swap events to a structured logger.
type LogSink struct {
	logger Logger
}

// NewLogSink creates a sink logging through logger.
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

// NotifySwap implements engine.EventSink.
func (s *LogSink) NotifySwap(event engine.SwapEvent) {
	s.logger.Info("swap",
		"initiator", event.Initiator.Hex(),
		"assetIn", event.AssetIn.Hex(),
		"assetOut", event.AssetOut.Hex(),
		"amountIn", event.AmountIn.String(),
		"amountOut", event.AmountOut.String(),
	)
}

// MultiSink forwards each event to every wrapped sink in order.
type MultiSink []engine.EventSink

// NotifySwap implements engine.EventSink.
func (s MultiSink) NotifySwap(event engine.SwapEvent) {
	for _, sink := range s {
		sink.NotifySwap(event)
	}
}
