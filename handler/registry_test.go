package handler_test

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/xraph/prepaid/handler"
)

func echo(typeKey string) handler.Handler {
	return handler.Func(typeKey, func(_ context.Context, in handler.Input) (json.RawMessage, error) {
		return in.Payload, nil
	})
}

func TestRegisterAndGet(t *testing.T) {
	r := handler.NewRegistry()

	if err := r.Register(echo("sentiment")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	h, ok := r.Get("sentiment")
	if !ok {
		t.Fatal("registered handler not found")
	}
	if h.Type() != "sentiment" {
		t.Errorf("Type: got %q, want sentiment", h.Type())
	}

	if _, ok := r.Get("nonexistent"); ok {
		t.Error("Get returned a handler for an unknown type")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := handler.NewRegistry()

	if err := r.Register(echo("sentiment")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(echo("sentiment")); err == nil {
		t.Error("duplicate registration accepted")
	}
}

func TestRegisterEmptyType(t *testing.T) {
	r := handler.NewRegistry()
	if err := r.Register(echo("")); err == nil {
		t.Error("empty job type accepted")
	}
}

func TestTypesSorted(t *testing.T) {
	r := handler.NewRegistry()
	for _, key := range []string{"keywords", "sentiment", "entities"} {
		if err := r.Register(echo(key)); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"entities", "keywords", "sentiment"}
	if got := r.Types(); !reflect.DeepEqual(got, want) {
		t.Errorf("Types: got %v, want %v", got, want)
	}
	if r.Count() != 3 {
		t.Errorf("Count: got %d, want 3", r.Count())
	}
}

func TestFuncAdapter(t *testing.T) {
	h := handler.Func("echo", func(_ context.Context, in handler.Input) (json.RawMessage, error) {
		return in.Payload, nil
	})

	out, err := h.Handle(context.Background(), handler.Input{
		JobID:   "job_1",
		Payload: json.RawMessage(`{"x":1}`),
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if string(out) != `{"x":1}` {
		t.Errorf("got %s, want {\"x\":1}", out)
	}
}
