// Package handler defines the analysis handler contract: the pluggable
// compute behind each purchasable job type.
package handler

import (
	"context"
	"encoding/json"
)

// Input is everything a handler receives about the job it is running.
type Input struct {
	JobID   string
	UserID  string
	Type    string
	Payload json.RawMessage
}

// Handler executes one kind of analysis. Type returns the catalog key the
// handler serves; Handle runs the analysis and returns the result document.
// A nil error with an empty result is treated as a failure upstream: a
// charge is only kept when something was actually delivered.
type Handler interface {
	Type() string
	Handle(ctx context.Context, in Input) (json.RawMessage, error)
}

// Func adapts a plain function into a Handler.
func Func(typeKey string, fn func(ctx context.Context, in Input) (json.RawMessage, error)) Handler {
	return funcHandler{typeKey: typeKey, fn: fn}
}

type funcHandler struct {
	typeKey string
	fn      func(ctx context.Context, in Input) (json.RawMessage, error)
}

func (f funcHandler) Type() string { return f.typeKey }

func (f funcHandler) Handle(ctx context.Context, in Input) (json.RawMessage, error) {
	return f.fn(ctx, in)
}
