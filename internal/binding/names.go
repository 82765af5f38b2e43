package binding

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	evdev "github.com/holoplot/go-evdev"

	"github.com/char5742/pedald/internal/consts"
)

// ErrUnknownKey はキー名を解釈できなかった場合のエラー
var ErrUnknownKey = errors.New("unknown key name")

// 表示順は Ctrl, Shift, Alt, Win
var modifierNames = []struct {
	mod  Modifiers
	name string
}{
	{ModCtrl, "Ctrl"},
	{ModShift, "Shift"},
	{ModAlt, "Alt"},
	{ModWin, "Win"},
}

var mouseNames = map[uint16]string{
	MouseLeft:   "Mouse Left",
	MouseMiddle: "Mouse Middle",
	MouseRight:  "Mouse Right",
}

// evdevの名前より読みやすい表示名
var friendlyNames = map[uint16]string{
	consts.KeyLeftShift:          "Shift",
	consts.KeyRightShift:         "Shift",
	consts.KeyLeftCtrl:           "Ctrl",
	consts.KeyRightCtrl:          "Ctrl",
	consts.KeyLeftAlt:            "Alt",
	consts.KeyRightAlt:           "Alt",
	consts.KeyLeftMeta:           "Win",
	consts.KeyRightMeta:          "Win",
	consts.KeyBackspace:          "Backspace",
	consts.KeyEsc:                "Esc",
	consts.KeyDelete:             "Delete",
	uint16(evdev.KEY_ENTER):      "Enter",
	uint16(evdev.KEY_SPACE):      "Space",
	uint16(evdev.KEY_TAB):        "Tab",
	uint16(evdev.KEY_CAPSLOCK):   "Caps Lock",
	uint16(evdev.KEY_PAGEUP):     "Page Up",
	uint16(evdev.KEY_PAGEDOWN):   "Page Down",
	uint16(evdev.KEY_LEFT):       "Left Arrow",
	uint16(evdev.KEY_RIGHT):      "Right Arrow",
	uint16(evdev.KEY_UP):         "Up Arrow",
	uint16(evdev.KEY_DOWN):       "Down Arrow",
	uint16(evdev.KEY_SYSRQ):      "Print Screen",
	uint16(evdev.KEY_NUMLOCK):    "Num Lock",
	uint16(evdev.KEY_SCROLLLOCK): "Scroll Lock",
	uint16(evdev.KEY_SEMICOLON):  ";",
	uint16(evdev.KEY_EQUAL):      "=",
	uint16(evdev.KEY_COMMA):      ",",
	uint16(evdev.KEY_MINUS):      "-",
	uint16(evdev.KEY_DOT):        ".",
	uint16(evdev.KEY_SLASH):      "/",
	uint16(evdev.KEY_GRAVE):      "`",
	uint16(evdev.KEY_LEFTBRACE):  "[",
	uint16(evdev.KEY_RIGHTBRACE): "]",
	uint16(evdev.KEY_APOSTROPHE): "'",
	uint16(evdev.KEY_BACKSLASH):  "\\",
}

// 名前→基本コードの逆引き。小文字・空白なしで引く
var nameAliases = map[string]uint16{
	"ctrl":        consts.KeyLeftCtrl,
	"control":     consts.KeyLeftCtrl,
	"shift":       consts.KeyLeftShift,
	"alt":         consts.KeyLeftAlt,
	"win":         consts.KeyLeftMeta,
	"super":       consts.KeyLeftMeta,
	"meta":        consts.KeyLeftMeta,
	"esc":         consts.KeyEsc,
	"mouseleft":   MouseLeft,
	"mousemiddle": MouseMiddle,
	"mouseright":  MouseRight,
}

var modifierAliases = map[string]Modifiers{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"shift":   ModShift,
	"alt":     ModAlt,
	"win":     ModWin,
	"super":   ModWin,
	"meta":    ModWin,
}

func init() {
	// 表示名からも逆引きできるようにする
	for code, name := range friendlyNames {
		key := normalizeName(name)
		if _, exists := nameAliases[key]; !exists {
			nameAliases[key] = code
		}
	}
}

// Name はコードを "Ctrl + Shift + A" のような表示用文字列にする
func Name(c Code) string {
	if !c.IsBound() {
		return "None"
	}
	base, mods := c.Unpack()

	var b strings.Builder
	for _, m := range modifierNames {
		if mods.Has(m.mod) {
			b.WriteString(m.name)
			b.WriteString(" + ")
		}
	}
	b.WriteString(KeyName(base))
	return b.String()
}

// KeyName は基本コード単体の表示名を返す
func KeyName(base uint16) string {
	if name, ok := mouseNames[base]; ok {
		return name
	}
	if name, ok := friendlyNames[base]; ok {
		return name
	}
	if name, ok := evdev.KEYToString[evdev.EvCode(base)]; ok && strings.HasPrefix(name, "KEY_") {
		return displayKey(strings.TrimPrefix(name, "KEY_"))
	}
	return fmt.Sprintf("Unknown (0x%X)", base)
}

// 1文字や F1 のような名前はそのまま、それ以外は先頭だけ大文字にする
func displayKey(raw string) string {
	if len(raw) <= 1 || (raw[0] == 'F' && isDigits(raw[1:])) {
		return raw
	}
	if strings.HasPrefix(raw, "KP") {
		return "Num " + raw[2:]
	}
	return raw[:1] + strings.ToLower(raw[1:])
}

// ParseCode は "Ctrl+Shift+A"、"Mouse Left"、"None"、10進数/16進数の数値をコードに変換する。
// 最後の要素が基本キーになり、それ以外は修飾キーでなければならない
func ParseCode(s string) (Code, error) {
	raw := strings.TrimSpace(s)
	if raw == "" || strings.EqualFold(raw, "none") {
		return Unbound, nil
	}
	// 1桁の数字はキー名として扱う
	if len(raw) > 1 {
		if n, err := strconv.ParseUint(raw, 0, 32); err == nil {
			return Code(n), nil
		}
	}

	parts := strings.Split(raw, "+")
	var mods Modifiers
	for _, token := range parts[:len(parts)-1] {
		mod, ok := modifierAliases[normalizeName(token)]
		if !ok {
			return Unbound, fmt.Errorf("%w: modifier %q in %q", ErrUnknownKey, strings.TrimSpace(token), raw)
		}
		mods |= mod
	}

	last := parts[len(parts)-1]
	base, ok := lookupKey(last)
	if !ok {
		return Unbound, fmt.Errorf("%w: %q", ErrUnknownKey, strings.TrimSpace(last))
	}
	return PackModifiers(base, mods), nil
}

func lookupKey(token string) (uint16, bool) {
	key := normalizeName(token)
	if key == "" {
		return 0, false
	}
	if code, ok := nameAliases[key]; ok {
		return code, true
	}
	if code, ok := evdev.KEYFromString["KEY_"+strings.ToUpper(key)]; ok {
		return uint16(code), true
	}
	if strings.HasPrefix(key, "num") {
		if code, ok := evdev.KEYFromString["KEY_KP"+strings.ToUpper(key[3:])]; ok {
			return uint16(code), true
		}
	}
	return 0, false
}

func normalizeName(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
