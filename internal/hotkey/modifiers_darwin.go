//go:build darwin

package hotkey

import "golang.design/x/hotkey"

var modifierCodes = map[string]hotkey.Modifier{
	ModifierCtrl:  hotkey.ModCtrl,
	ModifierShift: hotkey.ModShift,
	ModifierAlt:   hotkey.ModOption,
	ModifierSuper: hotkey.ModCmd,
}
