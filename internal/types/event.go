package types

import (
	"syscall"

	"github.com/char5742/pedald/internal/consts"
)

// Event はカーネルのinput_eventと同じレイアウトの入力イベント
type Event struct {
	Time  syscall.Timeval // イベント発生時刻
	Type  uint16          // イベントタイプ
	Code  uint16          // イベントコード
	Value int32           // イベント値
}

// KeyEvent はEV_KEYイベントを作る。pressedがtrueなら押下(1)、falseなら解放(0)
func KeyEvent(code uint16, pressed bool) Event {
	ev := Event{Type: consts.Key, Code: code}
	if pressed {
		ev.Value = 1
	}
	return ev
}

// SynEvent はSYN_REPORTイベントを作る
func SynEvent() Event {
	return Event{Type: consts.Syn, Code: consts.SynReport}
}
