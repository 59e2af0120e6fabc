// Package forward turns heart-rate samples into OSC messages and sends them
// over UDP.
package forward

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hypebeast/go-osc/osc"

	"github.com/chaz8081/hrbridge/internal/heartrate"
)

// OSC addresses understood by the receiver
const (
	HeartRateAddress = "/avatar/parameters/HeartRate"
	ChatboxAddress   = "/chatbox/input"
)

// Forwarding modes
const (
	ModeContinuous = "continuous" // every sample as a normalized float
	ModeChatbox    = "chatbox"    // rate-limited text for the chatbox
)

// DefaultChatboxFormat renders the bpm into chatbox text.
const DefaultChatboxFormat = "❤ %d bpm"

// Builder turns a sample into an OSC message.
type Builder interface {
	Build(s heartrate.Sample) *osc.Message
}

// ContinuousBuilder sends bpm/255 as a single float argument.
type ContinuousBuilder struct{}

func (ContinuousBuilder) Build(s heartrate.Sample) *osc.Message {
	return osc.NewMessage(HeartRateAddress, heartrate.Normalize(s.BPM))
}

// ChatboxBuilder sends formatted text plus the two chatbox flags: send
// immediately (true) and play the notification sound (false).
type ChatboxBuilder struct {
	Format string // fmt verb for the bpm, e.g. "%d bpm"
}

func (b ChatboxBuilder) Build(s heartrate.Sample) *osc.Message {
	format := b.Format
	if format == "" {
		format = DefaultChatboxFormat
	}
	text := fitChatbox(fmt.Sprintf(format, s.BPM), MaxChatboxRunes)
	return osc.NewMessage(ChatboxAddress, text, true, false)
}

// Transport delivers encoded messages.
type Transport interface {
	Send(data []byte) error
}

// Forwarder applies the rate limit, builds the message and sends it.
type Forwarder struct {
	transport Transport
	builder   Builder
	limiter   *Limiter
}

// New creates a Forwarder. limiter may be nil to forward every sample.
func New(transport Transport, builder Builder, limiter *Limiter) *Forwarder {
	return &Forwarder{
		transport: transport,
		builder:   builder,
		limiter:   limiter,
	}
}

// NewForMode builds the Forwarder for a configured mode.
func NewForMode(transport Transport, mode string, opts Options) (*Forwarder, error) {
	switch strings.ToLower(mode) {
	case ModeContinuous, "":
		return New(transport, ContinuousBuilder{}, nil), nil
	case ModeChatbox:
		return New(transport, ChatboxBuilder{Format: opts.ChatboxFormat}, NewLimiter(opts.MinInterval)), nil
	default:
		return nil, fmt.Errorf("forward: unknown mode %q", mode)
	}
}

// Forward sends s unless the rate limit suppresses it. It reports whether
// a message was sent.
func (f *Forwarder) Forward(s heartrate.Sample) (bool, error) {
	if f.limiter != nil && !f.limiter.Allow(s.At) {
		return false, nil
	}

	msg := f.builder.Build(s)
	data, err := msg.MarshalBinary()
	if err != nil {
		return false, fmt.Errorf("forward: encode %s: %w", msg.Address, err)
	}
	if err := f.transport.Send(data); err != nil {
		return false, fmt.Errorf("forward: send %s: %w", msg.Address, err)
	}

	slog.Debug("[OSC] sent", "address", msg.Address, "args", msg.Arguments, "bpm", s.BPM)
	return true, nil
}
