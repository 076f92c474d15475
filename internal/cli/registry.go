package cli

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Handler contributes one subcommand.
type Handler interface {
	Name() string
	Command() *cobra.Command
}

// Registry holds the subcommands in registration order.
type Registry struct {
	handlers map[string]Handler
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds h. Names must be unique and non-empty.
func (r *Registry) Register(h Handler) error {
	name := h.Name()
	if name == "" {
		return errors.New("cli: handler name is required")
	}
	if _, exists := r.handlers[name]; exists {
		return errors.Errorf("cli: %s already registered", name)
	}
	r.handlers[name] = h
	r.order = append(r.order, name)
	return nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Attach adds every registered command to root.
func (r *Registry) Attach(root *cobra.Command) {
	for _, name := range r.order {
		root.AddCommand(r.handlers[name].Command())
	}
}
