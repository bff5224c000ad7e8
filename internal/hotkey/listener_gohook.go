//go:build hotkeys

package hotkey

import (
	"context"
	"strconv"

	hook "github.com/robotn/gohook"
	"github.com/sirupsen/logrus"
)

// gohook key names for each canonical key. Modifiers list both sides.
var gohookNames = map[string][]string{
	ModCtrl:     {"ctrl", "rctrl"},
	ModShift:    {"shift", "rshift"},
	ModAlt:      {"alt", "ralt"},
	ModMeta:     {"cmd", "rcmd"},
	"space":     {"space"},
	KeyEscape:   {"esc"},
	"enter":     {"enter"},
	"tab":       {"tab"},
	"backspace": {"backspace"},
	"delete":    {"delete"},
	"comma":     {","},
	"period":    {"."},
	"slash":     {"/"},
	"semicolon": {";"},
	"minus":     {"-"},
	"equal":     {"="},
	"up":        {"up"},
	"down":      {"down"},
	"left":      {"left"},
	"right":     {"right"},
	"home":      {"home"},
	"end":       {"end"},
	"pageup":    {"pageup"},
	"pagedown":  {"pagedown"},
}

// Listener reads global keyboard events through libuiohook.
type Listener struct {
	tracker *Tracker
	codes   map[uint16]string
	logger  *logrus.Logger
}

// NewListener prepares a listener for bindings.
func NewListener(bindings []Binding, logger *logrus.Logger) (*Listener, error) {
	codes := map[uint16]string{}
	add := func(canonical, name string) {
		if code, ok := hook.Keycode[name]; ok {
			codes[code] = canonical
		}
	}
	for canonical, names := range gohookNames {
		for _, n := range names {
			add(canonical, n)
		}
	}
	for c := 'a'; c <= 'z'; c++ {
		add(string(c), string(c))
	}
	for c := '0'; c <= '9'; c++ {
		add(string(c), string(c))
	}
	for i := 1; i <= 12; i++ {
		name := "f" + strconv.Itoa(i)
		add(name, name)
	}
	for _, b := range bindings {
		if !b.Enabled {
			continue
		}
		if !mapped(codes, b.Combo.Key) {
			logger.Warnf("hotkey %s: key %q has no keycode on this platform", b.Action, b.Combo.Key)
		}
	}
	return &Listener{tracker: NewTracker(bindings), codes: codes, logger: logger}, nil
}

// Run delivers binding events to out until ctx is done. The send blocks
// only as long as the consumer; the consumer must keep up.
func (l *Listener) Run(ctx context.Context, out chan<- Event) error {
	events := hook.Start()
	defer hook.End()
	l.logger.Info("global hotkey listener started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			key, known := l.codes[ev.Keycode]
			if !known {
				continue
			}
			var emitted []Event
			switch ev.Kind {
			case hook.KeyHold:
				emitted = l.tracker.Press(key)
			case hook.KeyUp:
				emitted = l.tracker.Release(key)
			default:
				continue
			}
			for _, e := range emitted {
				select {
				case out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func mapped(codes map[uint16]string, key string) bool {
	for _, k := range codes {
		if k == key {
			return true
		}
	}
	return false
}
