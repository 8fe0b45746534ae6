package protocol

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/adwski/scribble-client/client/metrics"
	"github.com/adwski/scribble-client/client/model"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

var (
	ErrMalformed = errors.New("malformed envelope")
	ErrPayload   = errors.New("undecodable payload")
	ErrEncode    = errors.New("unable to encode message")
)

type (
	// Handler consumes the raw payload of one message type.
	Handler func(data json.RawMessage) error

	// Builder collects handlers during setup. At most one handler exists per
	// type; registering again replaces the previous one.
	Builder struct {
		handlers map[model.MessageType]Handler
	}

	Config struct {
		Logger  *zerolog.Logger
		Metrics *metrics.Metrics
	}

	// Router dispatches decoded envelopes. Its table is fixed at Build time.
	Router struct {
		handlers map[model.MessageType]Handler
		metrics  *metrics.Metrics
		logger   zerolog.Logger
	}

	wireEnvelope struct {
		Type *model.MessageType `json:"type"`
		Data json.RawMessage    `json:"data"`
	}
)

func NewBuilder() *Builder {
	return &Builder{handlers: make(map[model.MessageType]Handler)}
}

// Handle registers a raw handler for t.
func (b *Builder) Handle(t model.MessageType, h Handler) *Builder {
	b.handlers[t] = h
	return b
}

// On registers fn for t; the payload is decoded into T before fn runs.
func On[T any](b *Builder, t model.MessageType, fn func(T)) *Builder {
	return b.Handle(t, func(data json.RawMessage) error {
		var v T
		if !isEmpty(data) {
			if err := json.Unmarshal(data, &v); err != nil {
				return errors.Join(ErrPayload, err)
			}
		}
		fn(v)
		return nil
	})
}

// OnSignal registers fn for a message type whose payload carries nothing.
func OnSignal(b *Builder, t model.MessageType, fn func()) *Builder {
	return b.Handle(t, func(json.RawMessage) error {
		fn()
		return nil
	})
}

func (b *Builder) Build(cfg Config) *Router {
	handlers := make(map[model.MessageType]Handler, len(b.handlers))
	for t, h := range b.handlers {
		handlers[t] = h
	}
	return &Router{
		handlers: handlers,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With().Str("component", "router").Logger(),
	}
}

// Handles reports whether a handler is registered for t.
func (r *Router) Handles(t model.MessageType) bool {
	_, ok := r.handlers[t]
	return ok
}

// Dispatch decodes one inbound frame and runs its handler.
// Faults are logged and counted, never returned: it reports whether a handler ran successfully.
func (r *Router) Dispatch(frame []byte) bool {
	env, err := Decode(frame)
	if err != nil {
		r.metrics.FrameDropped("malformed")
		r.logger.Error().Err(err).Int("size", len(frame)).Msg("dropping inbound frame")
		r.logger.Trace().Msg(spew.Sdump(string(frame)))
		return false
	}
	r.metrics.FrameReceived(env.Type.String())

	h, ok := r.handlers[env.Type]
	if !ok {
		r.metrics.FrameUnhandled(env.Type.String())
		r.logger.Debug().Stringer("type", env.Type).Msg("unhandled message type")
		r.logger.Trace().Msg(spew.Sdump(env))
		return false
	}

	if err = h(env.Data); err != nil {
		r.metrics.FrameDropped("payload")
		r.logger.Error().Err(err).Stringer("type", env.Type).Msg("dropping inbound message")
		r.logger.Trace().Msg(spew.Sdump(string(env.Data)))
		return false
	}
	return true
}

// Decode parses a frame into an envelope. A frame without a type is malformed.
func Decode(frame []byte) (model.Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(frame, &w); err != nil {
		return model.Envelope{}, errors.Join(ErrMalformed, err)
	}
	if w.Type == nil {
		return model.Envelope{}, ErrMalformed
	}
	return model.Envelope{Type: *w.Type, Data: w.Data}, nil
}

// Encode serializes an outbound message. A nil payload is sent as an empty object.
func Encode(t model.MessageType, data any) ([]byte, error) {
	if data == nil {
		data = model.Empty{}
	}
	b, err := json.Marshal(&model.Message{Type: t, Data: data})
	if err != nil {
		return nil, errors.Join(ErrEncode, err)
	}
	return b, nil
}

func isEmpty(data json.RawMessage) bool {
	d := bytes.TrimSpace(data)
	return len(d) == 0 || bytes.Equal(d, []byte("null"))
}
