package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

var (
	ErrUnknownCommand   = errors.New("no handler registered for command")
	ErrDuplicateHandler = errors.New("command handler already registered")
)

// CommandHandler handles one command and returns a caller-visible result,
// such as a batch reference.
type CommandHandler func(ctx context.Context, cmd domain.Command, uow port.UnitOfWork) (string, error)

type EventHandler func(ctx context.Context, evt domain.Event, uow port.UnitOfWork) error

// Registry maps message names to handlers. It is filled once at startup and
// only read afterwards.
type Registry struct {
	commands map[string]CommandHandler
	events   map[string][]namedEventHandler
}

type namedEventHandler struct {
	name    string
	handler EventHandler
}

func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]CommandHandler),
		events:   make(map[string][]namedEventHandler),
	}
}

// RegisterCommand binds a typed handler to the command type C.
func RegisterCommand[C domain.Command](r *Registry, h func(ctx context.Context, cmd C, uow port.UnitOfWork) (string, error)) error {
	var zero C
	name := zero.MessageName()
	if _, ok := r.commands[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrDuplicateHandler)
	}
	r.commands[name] = func(ctx context.Context, cmd domain.Command, uow port.UnitOfWork) (string, error) {
		typed, ok := cmd.(C)
		if !ok {
			return "", fmt.Errorf("handler for %s received %T", name, cmd)
		}
		return h(ctx, typed, uow)
	}
	return nil
}

// RegisterEvent appends a typed handler for the event type E. Handlers run in
// registration order; handlerName is used in logs.
func RegisterEvent[E domain.Event](r *Registry, handlerName string, h func(ctx context.Context, evt E, uow port.UnitOfWork) error) {
	var zero E
	name := zero.MessageName()
	r.events[name] = append(r.events[name], namedEventHandler{
		name: handlerName,
		handler: func(ctx context.Context, evt domain.Event, uow port.UnitOfWork) error {
			typed, ok := evt.(E)
			if !ok {
				return fmt.Errorf("handler %s for %s received %T", handlerName, name, evt)
			}
			return h(ctx, typed, uow)
		},
	})
}

func (r *Registry) commandHandler(cmd domain.Command) (CommandHandler, error) {
	h, ok := r.commands[cmd.MessageName()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", cmd.MessageName(), ErrUnknownCommand)
	}
	return h, nil
}

func (r *Registry) eventHandlers(evt domain.Event) []namedEventHandler {
	return r.events[evt.MessageName()]
}
