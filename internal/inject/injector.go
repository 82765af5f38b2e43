// Package inject はバインディングコードをOSの入力イベントに変換して送出する
package inject

import (
	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/consts"
)

// Direction はキーの押下/解放
type Direction int

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Injector はバインディングコードを押下/解放として送出するインターフェース
type Injector interface {
	// Inject はcodeの押下または解放を送出する。修飾キーの順序はSequenceに従う
	Inject(code binding.Code, dir Direction) error
	// ReleaseAllModifiers は既知の修飾キーをすべて解放する
	ReleaseAllModifiers() error
}

// Stroke は送出する1つのキー/ボタンイベント
type Stroke struct {
	Code    uint16 // evdevのキーコードまたはBTN_*
	Pressed bool
}

// 押下時の修飾キーの順序。解放時はこの逆順
var modifierOrder = []struct {
	mod binding.Modifiers
	key uint16
}{
	{binding.ModShift, consts.KeyLeftShift},
	{binding.ModCtrl, consts.KeyLeftCtrl},
	{binding.ModAlt, consts.KeyLeftAlt},
	{binding.ModWin, consts.KeyLeftMeta},
}

var mouseButtons = map[uint16]uint16{
	binding.MouseLeft:   consts.MouseBtnLeft,
	binding.MouseMiddle: consts.MouseBtnMiddle,
	binding.MouseRight:  consts.MouseBtnRight,
}

// Sequence はcodeの押下/解放に対応するイベント列を返す。
// 押下は Shift, Ctrl, Alt, Win の順に修飾キーを押してから基本キー、
// 解放は基本キーを離してから Win, Alt, Ctrl, Shift の順に修飾キーを離す。
// 基本コードが0の場合は修飾キーだけになる
func Sequence(code binding.Code, dir Direction) []Stroke {
	base, mods := code.Unpack()
	pressed := dir == Down

	var main []Stroke
	if binding.IsMouseButton(base) {
		main = append(main, Stroke{Code: mouseButtons[base], Pressed: pressed})
	} else if base > 0 {
		main = append(main, Stroke{Code: base, Pressed: pressed})
	}

	strokes := make([]Stroke, 0, len(modifierOrder)+1)
	if pressed {
		for _, m := range modifierOrder {
			if mods.Has(m.mod) {
				strokes = append(strokes, Stroke{Code: m.key, Pressed: true})
			}
		}
		return append(strokes, main...)
	}

	strokes = append(strokes, main...)
	for i := len(modifierOrder) - 1; i >= 0; i-- {
		if mods.Has(modifierOrder[i].mod) {
			strokes = append(strokes, Stroke{Code: modifierOrder[i].key, Pressed: false})
		}
	}
	return strokes
}

// ReleaseModifiersSequence はReleaseAllModifiersで送出するイベント列を返す
func ReleaseModifiersSequence() []Stroke {
	strokes := make([]Stroke, 0, len(modifierOrder))
	for _, m := range modifierOrder {
		strokes = append(strokes, Stroke{Code: m.key, Pressed: false})
	}
	return strokes
}

// KeyCodes はuinputデバイスに登録するキーコードの一覧を返す
func KeyCodes() []uint16 {
	// BTN_LEFT などのマウスボタンもこの範囲に含まれる
	codes := make([]uint16, 0, consts.KeyMax)
	for code := uint16(1); code <= consts.KeyMax; code++ {
		codes = append(codes, code)
	}
	return codes
}
