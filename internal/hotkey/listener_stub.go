//go:build !hotkeys

package hotkey

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Listener is a no-op in builds without gohook.
type Listener struct{}

// NewListener reports ErrUnsupported.
func NewListener(_ []Binding, _ *logrus.Logger) (*Listener, error) {
	return nil, ErrUnsupported
}

// Run returns immediately.
func (l *Listener) Run(_ context.Context, _ chan<- Event) error {
	return ErrUnsupported
}
