//go:build linux

package hotkey

import "golang.design/x/hotkey"

// X11 maps Alt to Mod1 and Super to Mod4 on common layouts.
var modifierCodes = map[string]hotkey.Modifier{
	ModifierCtrl:  hotkey.ModCtrl,
	ModifierShift: hotkey.ModShift,
	ModifierAlt:   hotkey.Mod1,
	ModifierSuper: hotkey.Mod4,
}
