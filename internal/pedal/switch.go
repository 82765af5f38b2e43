// Package pedal はフットペダルのレポート解釈（チャタリング除去・エッジ検出・ラッチ）と
// 接続中デバイスの実行時状態を扱う
package pedal

import (
	"fmt"
	"strings"

	"github.com/char5742/pedald/internal/binding"
)

// Switch はペダルのスイッチ位置
type Switch int

const (
	Left Switch = iota
	Middle
	Right
)

// SwitchCount はペダル1台あたりのスイッチ数
const SwitchCount = 3

// Switches は全スイッチを左から順に並べたもの
var Switches = [SwitchCount]Switch{Left, Middle, Right}

var switchNames = [SwitchCount]string{"left", "middle", "right"}

// Mask はレポートのビットマスク上でのスイッチのビット
func (s Switch) Mask() byte {
	return 1 << uint(s)
}

// Valid はsが有効なスイッチかどうかを返す
func (s Switch) Valid() bool {
	return s >= Left && s <= Right
}

func (s Switch) String() string {
	if !s.Valid() {
		return fmt.Sprintf("switch(%d)", int(s))
	}
	return switchNames[s]
}

func (s Switch) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid switch %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Switch) UnmarshalText(text []byte) error {
	parsed, err := ParseSwitch(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSwitch は "left"/"middle"/"right" または "0"〜"2" をSwitchに変換する
func ParseSwitch(s string) (Switch, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range switchNames {
		if name == n || name == fmt.Sprint(i) {
			return Switch(i), nil
		}
	}
	return 0, fmt.Errorf("unknown switch %q", s)
}

// BindingSet は1台のペダルの左・中・右のバインディング
type BindingSet [SwitchCount]binding.Code

// With はswのバインディングだけをcodeに置き換えたコピーを返す
func (b BindingSet) With(sw Switch, code binding.Code) BindingSet {
	b[sw] = code
	return b
}
