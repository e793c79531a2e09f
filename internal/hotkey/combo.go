package hotkey

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Modifier names after alias normalisation.
const (
	ModifierCtrl  = "ctrl"
	ModifierShift = "shift"
	ModifierAlt   = "alt"
	ModifierSuper = "super"
)

// Combo is a parsed key combination such as "Ctrl+Shift+R".
type Combo struct {
	Modifiers []string
	Key       string
}

func (c Combo) String() string {
	parts := make([]string, 0, len(c.Modifiers)+1)
	for _, mod := range c.Modifiers {
		parts = append(parts, displayModifier(mod))
	}
	return strings.Join(append(parts, c.Key), "+")
}

// DefaultCombo is Cmd+Shift+R on macOS and Ctrl+Shift+R elsewhere.
func DefaultCombo() string {
	if runtime.GOOS == "darwin" {
		return "Cmd+Shift+R"
	}
	return "Ctrl+Shift+R"
}

// ParseCombo accepts modifiers and one key separated by "+", in any case.
func ParseCombo(input string) (Combo, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Combo{}, errors.New("hotkey is empty")
	}

	var combo Combo
	seen := map[string]bool{}
	for _, raw := range strings.Split(input, "+") {
		part := strings.ToLower(strings.TrimSpace(raw))
		if part == "" {
			return Combo{}, fmt.Errorf("invalid hotkey %q", input)
		}
		if mod, ok := normalizeModifier(part); ok {
			if !seen[mod] {
				seen[mod] = true
				combo.Modifiers = append(combo.Modifiers, mod)
			}
			continue
		}
		if combo.Key != "" {
			return Combo{}, fmt.Errorf("hotkey %q has more than one key", input)
		}
		key := strings.ToUpper(part)
		if _, ok := keyCodes[key]; !ok {
			return Combo{}, fmt.Errorf("unsupported key %q", raw)
		}
		combo.Key = key
	}

	if combo.Key == "" {
		return Combo{}, fmt.Errorf("hotkey %q has no key", input)
	}
	if len(combo.Modifiers) == 0 {
		return Combo{}, fmt.Errorf("hotkey %q needs at least one modifier", input)
	}
	return combo, nil
}

func normalizeModifier(part string) (string, bool) {
	switch part {
	case "ctrl", "control", "ctl":
		return ModifierCtrl, true
	case "shift":
		return ModifierShift, true
	case "alt", "option", "opt":
		return ModifierAlt, true
	case "cmd", "command", "super", "win", "meta":
		return ModifierSuper, true
	default:
		return "", false
	}
}

func displayModifier(mod string) string {
	switch mod {
	case ModifierCtrl:
		return "Ctrl"
	case ModifierShift:
		return "Shift"
	case ModifierAlt:
		if runtime.GOOS == "darwin" {
			return "Option"
		}
		return "Alt"
	case ModifierSuper:
		if runtime.GOOS == "darwin" {
			return "Cmd"
		}
		return "Super"
	default:
		return mod
	}
}
