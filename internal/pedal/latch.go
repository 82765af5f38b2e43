package pedal

import (
	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/inject"
)

// Action はラッチの遷移で送出すべき操作
type Action int

const (
	ActionNone Action = iota
	ActionDown
	ActionUp
)

// Direction はActionに対応する送出方向を返す。ActionNoneではokがfalse
func (a Action) Direction() (dir inject.Direction, ok bool) {
	switch a {
	case ActionDown:
		return inject.Down, true
	case ActionUp:
		return inject.Up, true
	}
	return 0, false
}

// Latch は1スイッチ分の押下状態。ゼロ値は解放状態
type Latch struct {
	pressed bool
}

// Pressed はラッチが押下状態かどうかを返す
func (l Latch) Pressed() bool {
	return l.pressed
}

// Step はスイッチのレベルを反映して遷移し、送出すべき操作を返す。
//
//	解放中 & 押下 & 割り当てあり & 抑止なし → 押下状態へ、ActionDown
//	押下中 & 解放                          → 解放状態へ、ActionUp
//
// 抑止は新しい押下だけを止め、押下中の解放は止めない。未割り当てのスイッチは遷移しない
func (l *Latch) Step(level bool, code binding.Code, suppressed bool) Action {
	switch {
	case !l.pressed && level && code.IsBound() && !suppressed:
		l.pressed = true
		return ActionDown
	case l.pressed && !level:
		l.pressed = false
		return ActionUp
	}
	return ActionNone
}

// Release は押下状態を強制的に解放し、解放前に押下状態だったかを返す
func (l *Latch) Release() bool {
	was := l.pressed
	l.pressed = false
	return was
}
