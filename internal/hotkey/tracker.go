package hotkey

// Tracker turns raw key presses and releases into binding Events.
// It is not safe for concurrent use; the listener owns it.
type Tracker struct {
	bindings []Binding
	held     map[string]bool
	active   map[Action]Binding
}

// NewTracker watches the enabled bindings.
func NewTracker(bindings []Binding) *Tracker {
	t := &Tracker{held: map[string]bool{}, active: map[Action]Binding{}}
	for _, b := range bindings {
		if b.Enabled {
			t.bindings = append(t.bindings, b)
		}
	}
	return t
}

// Press records key going down. Auto-repeat of a held key yields nothing.
// Escape is always reported as a CancelRecording press.
func (t *Tracker) Press(key string) []Event {
	if t.held[key] {
		return nil
	}
	t.held[key] = true

	var out []Event
	for _, b := range t.bindings {
		if b.Combo.Key != key || !t.modifiersHeld(b.Combo) {
			continue
		}
		if _, on := t.active[b.Action]; on {
			continue
		}
		t.active[b.Action] = b
		out = append(out, Event{Action: b.Action, Pressed: true})
	}
	if key == KeyEscape {
		out = append(out, Event{Action: ActionCancelRecording, Pressed: true})
	}
	return out
}

// Release records key going up. Any active binding using the key, modifiers
// included, is released.
func (t *Tracker) Release(key string) []Event {
	delete(t.held, key)
	var out []Event
	for _, act := range Actions {
		b, on := t.active[act]
		if !on {
			continue
		}
		if b.Combo.Key == key || b.Combo.has(key) {
			delete(t.active, act)
			out = append(out, Event{Action: act, Pressed: false})
		}
	}
	return out
}

// Reset forgets all held keys, e.g. after the hook restarts.
func (t *Tracker) Reset() {
	clear(t.held)
	clear(t.active)
}

func (t *Tracker) modifiersHeld(c Combination) bool {
	for _, m := range c.Modifiers {
		if !t.held[m] {
			return false
		}
	}
	return true
}
