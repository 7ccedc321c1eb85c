package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
)

type testBackend struct {
	kind Kind
}

func (t *testBackend) Kind() Kind {
	return t.kind
}

func (t *testBackend) Up(context.Context, string, *wgconf.Config) error {
	return nil
}

func (t *testBackend) Down(context.Context, string) error {
	return nil
}

func (t *testBackend) State(context.Context, string) (State, error) {
	return StateDown, nil
}

func (t *testBackend) Statistics(context.Context, string) (*Statistics, error) {
	return &Statistics{}, nil
}

func (t *testBackend) Close(context.Context) error {
	return nil
}

func TestCreate(t *testing.T) {
	kind := Kind("registry-test-supported")
	var received Options
	Register(kind, func(_ context.Context, options Options) (Backend, error) {
		received = options
		return &testBackend{kind: kind}, nil
	}, true)

	b, err := Create(context.Background(), kind, Options{ConfigDir: "/tmp/wgtunnel"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if b.Kind() != kind {
		t.Fatalf("expected kind %s, got %s", kind, b.Kind())
	}
	if received.ConfigDir != "/tmp/wgtunnel" {
		t.Fatalf("expected options to be passed to the factory, got %+v", received)
	}
	if !IsSupported(kind) {
		t.Fatalf("expected %s to be supported", kind)
	}
}

func TestCreateUnsupported(t *testing.T) {
	kind := Kind("registry-test-unsupported")
	Register(kind, nil, false)

	if _, err := Create(context.Background(), kind, Options{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if IsSupported(kind) {
		t.Fatalf("expected %s not to be supported", kind)
	}
}

func TestCreateUnknown(t *testing.T) {
	if _, err := Create(context.Background(), Kind("registry-test-missing"), Options{}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestStateResolve(t *testing.T) {
	tests := []struct {
		requested State
		current   State
		want      State
	}{
		{requested: StateUp, current: StateDown, want: StateUp},
		{requested: StateDown, current: StateUp, want: StateDown},
		{requested: StateToggle, current: StateUp, want: StateDown},
		{requested: StateToggle, current: StateDown, want: StateUp},
	}
	for _, tt := range tests {
		if got := tt.requested.Resolve(tt.current); got != tt.want {
			t.Fatalf("expected %s resolved against %s to be %s, got %s", tt.requested, tt.current, tt.want, got)
		}
	}
}

func TestParseState(t *testing.T) {
	for text, want := range map[string]State{"up": StateUp, "DOWN": StateDown, " toggle ": StateToggle} {
		got, err := ParseState(text)
		if err != nil {
			t.Fatalf("ParseState(%q) failed: %v", text, err)
		}
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
	if _, err := ParseState("sideways"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
