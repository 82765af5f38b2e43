// Package binding はペダルの各スイッチに割り当てるバインディングコードを扱う。
//
// コードは32ビット値で、下位16ビットが基本コード（evdevのキーコード、またはマウスボタン用の予約値）、
// ビット16〜19が修飾キー（Shift/Ctrl/Alt/Win）を表す。0は未割り当てを意味する。
package binding

// Code は基本コードと修飾キーを1つにまとめたバインディングコード
type Code uint32

// Modifiers は修飾キーの集合
type Modifiers uint8

// 修飾キーのビット。Code上ではmodifierShiftだけ左にずれる
const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModAlt
	ModWin
)

const (
	keyMask       = 0xFFFF
	modifierShift = 16
	modifierBits  = 0xF
)

// マウスボタン用の予約基本コード。evdevのキーコード範囲（0〜0x2FF）とは重ならない
const (
	MouseLeft   uint16 = 0xFF01
	MouseMiddle uint16 = 0xFF02
	MouseRight  uint16 = 0xFF03
)

// Unbound は未割り当てのコード
const Unbound Code = 0

// Pack は基本コードと修飾キーのフラグからコードを作る
func Pack(base uint16, shift, ctrl, alt, win bool) Code {
	var mods Modifiers
	if shift {
		mods |= ModShift
	}
	if ctrl {
		mods |= ModCtrl
	}
	if alt {
		mods |= ModAlt
	}
	if win {
		mods |= ModWin
	}
	return PackModifiers(base, mods)
}

// PackModifiers は基本コードと修飾キー集合からコードを作る
func PackModifiers(base uint16, mods Modifiers) Code {
	return Code(uint32(base)) | Code(uint32(mods&modifierBits)<<modifierShift)
}

// Unpack はコードを基本コードと修飾キー集合に分解する。ビット20以上は無視される
func (c Code) Unpack() (uint16, Modifiers) {
	return c.Base(), c.Modifiers()
}

// Base は基本コードを返す
func (c Code) Base() uint16 {
	return uint16(c & keyMask)
}

// Modifiers は修飾キー集合を返す
func (c Code) Modifiers() Modifiers {
	return Modifiers((uint32(c) >> modifierShift) & modifierBits)
}

// IsBound はコードが割り当て済みかどうかを返す
func (c Code) IsBound() bool {
	return c != Unbound
}

// Has は修飾キー集合にmが含まれているかを返す
func (m Modifiers) Has(mod Modifiers) bool {
	return m&mod == mod
}

// IsMouseButton は基本コードがマウスボタンの予約値かどうかを返す
func IsMouseButton(base uint16) bool {
	return base >= MouseLeft && base <= MouseRight
}
