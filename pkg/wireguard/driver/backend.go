package driver

import (
	"context"

	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
)

type Backend interface {
	Kind() Kind
	Up(ctx context.Context, name string, config *wgconf.Config) error
	Down(ctx context.Context, name string) error
	State(ctx context.Context, name string) (State, error)
	Statistics(ctx context.Context, name string) (*Statistics, error)
	Close(ctx context.Context) error
}
