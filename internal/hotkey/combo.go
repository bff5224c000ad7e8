package hotkey

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Canonical modifier names.
const (
	ModCtrl  = "ctrl"
	ModShift = "shift"
	ModAlt   = "alt"
	ModMeta  = "meta"
)

// KeyEscape is the canonical name of the cancel key.
const KeyEscape = "escape"

var modifierAliases = map[string]string{
	"ctrl": ModCtrl, "control": ModCtrl,
	"shift": ModShift,
	"alt": ModAlt, "option": ModAlt, "opt": ModAlt,
	"meta": ModMeta, "cmd": ModMeta, "command": ModMeta, "super": ModMeta, "win": ModMeta,
}

var keyAliases = map[string]string{
	"space": "space", "spacebar": "space",
	"esc": KeyEscape, "escape": KeyEscape,
	"enter": "enter", "return": "enter",
	"tab":       "tab",
	"backspace": "backspace",
	"delete":    "delete", "del": "delete",
	"comma": "comma", ",": "comma",
	"period": "period", ".": "period",
	"slash": "slash", "/": "slash",
	"semicolon": "semicolon", ";": "semicolon",
	"minus": "minus", "-": "minus",
	"equal": "equal", "=": "equal",
	"up": "up", "down": "down", "left": "left", "right": "right",
	"home": "home", "end": "end", "pageup": "pageup", "pagedown": "pagedown",
}

// Combination is a set of modifiers plus exactly one non-modifier key.
type Combination struct {
	Modifiers []string // canonical, sorted
	Key       string   // canonical
}

func (c Combination) String() string {
	parts := make([]string, 0, len(c.Modifiers)+1)
	for _, m := range c.Modifiers {
		parts = append(parts, strings.ToUpper(m[:1])+m[1:])
	}
	key := c.Key
	if len(key) == 1 {
		key = strings.ToUpper(key)
	} else {
		key = strings.ToUpper(key[:1]) + key[1:]
	}
	return strings.Join(append(parts, key), "+")
}

func (c Combination) has(mod string) bool {
	for _, m := range c.Modifiers {
		if m == mod {
			return true
		}
	}
	return false
}

// IsModifier reports whether a canonical key name is a modifier.
func IsModifier(name string) bool {
	switch name {
	case ModCtrl, ModShift, ModAlt, ModMeta:
		return true
	}
	return false
}

// canonicalKey normalizes a single key token; ok is false for unknown keys.
func canonicalKey(tok string) (name string, modifier bool, ok bool) {
	t := strings.ToLower(strings.TrimSpace(tok))
	if m, found := modifierAliases[t]; found {
		return m, true, true
	}
	if k, found := keyAliases[t]; found {
		return k, false, true
	}
	if len(t) == 1 && ((t[0] >= 'a' && t[0] <= 'z') || (t[0] >= '0' && t[0] <= '9')) {
		return t, false, true
	}
	if strings.HasPrefix(t, "f") {
		if n, err := strconv.Atoi(t[1:]); err == nil && n >= 1 && n <= 24 {
			return t, false, true
		}
	}
	return "", false, false
}

// ParseCombination parses strings like "Ctrl+Shift+Space". A combination
// needs at least one modifier and exactly one non-modifier key.
func ParseCombination(s string) (Combination, error) {
	if strings.TrimSpace(s) == "" {
		return Combination{}, fmt.Errorf("empty key combination")
	}
	var c Combination
	seen := map[string]bool{}
	for _, tok := range strings.Split(s, "+") {
		if strings.TrimSpace(tok) == "" {
			return Combination{}, fmt.Errorf("%q: empty key in combination", s)
		}
		name, mod, ok := canonicalKey(tok)
		if !ok {
			return Combination{}, fmt.Errorf("%q: unknown key %q", s, strings.TrimSpace(tok))
		}
		if mod {
			if !seen[name] {
				c.Modifiers = append(c.Modifiers, name)
				seen[name] = true
			}
			continue
		}
		if c.Key != "" {
			return Combination{}, fmt.Errorf("%q: more than one non-modifier key", s)
		}
		c.Key = name
	}
	if len(c.Modifiers) == 0 {
		return Combination{}, fmt.Errorf("%q: at least one modifier is required", s)
	}
	if c.Key == "" {
		return Combination{}, fmt.Errorf("%q: a non-modifier key is required", s)
	}
	sort.Strings(c.Modifiers)
	return c, nil
}

// Binding ties a combination to an action.
type Binding struct {
	Action  Action
	Combo   Combination
	Enabled bool
}

// BindingSpec is the unparsed form of a Binding as stored in config.
type BindingSpec struct {
	Action  string
	Keys    string
	Enabled bool
}

// ParseBindings validates specs. Unknown actions, malformed combinations
// and the same combination on two enabled bindings are rejected.
func ParseBindings(specs []BindingSpec) ([]Binding, error) {
	out := make([]Binding, 0, len(specs))
	used := map[string]Action{}
	for _, s := range specs {
		act := Action(s.Action)
		if !knownAction(act) {
			return nil, fmt.Errorf("hotkey: unknown action %q", s.Action)
		}
		combo, err := ParseCombination(s.Keys)
		if err != nil {
			return nil, fmt.Errorf("hotkey %s: %w", s.Action, err)
		}
		if s.Enabled {
			key := combo.String()
			if prev, dup := used[key]; dup {
				return nil, fmt.Errorf("hotkey: %s is bound to both %s and %s", key, prev, act)
			}
			used[key] = act
		}
		out = append(out, Binding{Action: act, Combo: combo, Enabled: s.Enabled})
	}
	return out, nil
}

func knownAction(a Action) bool {
	for _, k := range Actions {
		if k == a {
			return true
		}
	}
	return false
}
