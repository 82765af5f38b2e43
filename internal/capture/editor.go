// Package capture はスイッチに割り当てるキーを実際の入力から取り込む編集モードを扱う
package capture

import (
	"time"

	"github.com/google/uuid"

	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/consts"
	"github.com/char5742/pedald/internal/pedal"
)

// DefaultGuard は編集開始直後に入力を無視する時間。
// 編集開始のきっかけになったペダル操作の残りを飲み込む
const DefaultGuard = 300 * time.Millisecond

// キーイベントの値（input_event.value）
const (
	KeyReleased int32 = 0
	KeyPressed  int32 = 1
	KeyRepeated int32 = 2
)

// Target は取り込んだコードの書き込み先
type Target struct {
	DeviceID string       `json:"deviceId"`
	Switch   pedal.Switch `json:"switch"`
}

// Kind は編集モードの終わり方
type Kind int

const (
	Bound Kind = iota
	Unbound
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Bound:
		return "bound"
	case Unbound:
		return "unbound"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Outcome は編集モードの結果。Cancelled以外ではCodeを書き込む
type Outcome struct {
	Session string
	Target  Target
	Kind    Kind
	Code    binding.Code
}

var modifierKeys = map[uint16]binding.Modifiers{
	consts.KeyLeftShift:  binding.ModShift,
	consts.KeyRightShift: binding.ModShift,
	consts.KeyLeftCtrl:   binding.ModCtrl,
	consts.KeyRightCtrl:  binding.ModCtrl,
	consts.KeyLeftAlt:    binding.ModAlt,
	consts.KeyRightAlt:   binding.ModAlt,
	consts.KeyLeftMeta:   binding.ModWin,
	consts.KeyRightMeta:  binding.ModWin,
}

var mouseButtons = map[uint16]uint16{
	consts.MouseBtnLeft:   binding.MouseLeft,
	consts.MouseBtnMiddle: binding.MouseMiddle,
	consts.MouseBtnRight:  binding.MouseRight,
}

// ModifierFor はキーコードが修飾キーならその修飾ビットを返す
func ModifierFor(code uint16) (binding.Modifiers, bool) {
	mod, ok := modifierKeys[code]
	return mod, ok
}

// HeldModifiers は押下中のキーの一覧から修飾キー集合を作る
func HeldModifiers(pressed []uint16) binding.Modifiers {
	var mods binding.Modifiers
	for _, code := range pressed {
		mods |= modifierKeys[code]
	}
	return mods
}

// Editor は編集モードの状態。時刻は呼び出し側が渡し、内部で待つことはない。
// 並行アクセスは呼び出し側で直列化する
type Editor struct {
	guard time.Duration

	active  bool
	session string
	target  Target
	started time.Time

	held    map[uint16]bool // 押下中の修飾キー
	pending uint16          // 単独で押された修飾キー。解放で確定する

	armed string
}

// NewEditor はEditorを作る。guardが0以下ならDefaultGuard
func NewEditor(guard time.Duration) *Editor {
	if guard <= 0 {
		guard = DefaultGuard
	}
	return &Editor{guard: guard, held: map[uint16]bool{}}
}

// Guard は開始直後に入力を無視する時間を返す
func (e *Editor) Guard() time.Duration {
	return e.guard
}

// Begin はtargetへの編集を開始してセッションIDを返す。
// heldは開始時点で押されているキーで、修飾キーの追跡の初期値になる
func (e *Editor) Begin(target Target, at time.Time, held []uint16) string {
	e.active = true
	e.session = uuid.NewString()
	e.target = target
	e.started = at
	e.pending = 0
	e.armed = ""
	e.held = map[uint16]bool{}
	for _, code := range held {
		if _, ok := ModifierFor(code); ok {
			e.held[code] = true
		}
	}
	return e.session
}

// Active は編集中かどうかを返す
func (e *Editor) Active() bool {
	return e.active
}

// Target は編集中の書き込み先を返す
func (e *Editor) Target() (Target, bool) {
	return e.target, e.active
}

// Session は編集中のセッションIDを返す
func (e *Editor) Session() string {
	if !e.active {
		return ""
	}
	return e.session
}

// StartedAt は編集を開始した時刻を返す
func (e *Editor) StartedAt() time.Time {
	return e.started
}

// Cancel は編集を取り消す
func (e *Editor) Cancel() (Outcome, bool) {
	if !e.active {
		return Outcome{}, false
	}
	return e.finish(Cancelled, binding.Unbound), true
}

// Arm はdeviceIDの次の立ち上がりエッジで編集を始めるように予約する
func (e *Editor) Arm(deviceID string) {
	e.armed = deviceID
}

// Armed は予約中のデバイスIDを返す
func (e *Editor) Armed() (string, bool) {
	return e.armed, e.armed != ""
}

// Disarm は予約を取り消す
func (e *Editor) Disarm() {
	e.armed = ""
}

func (e *Editor) inGuard(at time.Time) bool {
	return at.Sub(e.started) <= e.guard
}

func (e *Editor) modifiers() binding.Modifiers {
	pressed := make([]uint16, 0, len(e.held))
	for code, down := range e.held {
		if down {
			pressed = append(pressed, code)
		}
	}
	return HeldModifiers(pressed)
}

func (e *Editor) finish(kind Kind, code binding.Code) Outcome {
	out := Outcome{Session: e.session, Target: e.target, Kind: kind, Code: code}
	e.active = false
	e.pending = 0
	return out
}

// HandleKey はキーボードイベントを処理する。編集が終わった場合はその結果を返す
func (e *Editor) HandleKey(at time.Time, code uint16, value int32) (Outcome, bool) {
	if !e.active || value == KeyRepeated {
		return Outcome{}, false
	}
	pressed := value == KeyPressed

	if code == consts.KeyEsc && pressed {
		return e.finish(Cancelled, binding.Unbound), true
	}

	if _, isModifier := ModifierFor(code); isModifier {
		return e.handleModifier(at, code, pressed)
	}

	if !pressed || e.inGuard(at) {
		return Outcome{}, false
	}
	if code == consts.KeyDelete || code == consts.KeyBackspace {
		return e.finish(Unbound, binding.Unbound), true
	}
	return e.finish(Bound, binding.PackModifiers(code, e.modifiers())), true
}

func (e *Editor) handleModifier(at time.Time, code uint16, pressed bool) (Outcome, bool) {
	if pressed {
		e.held[code] = true
		if !e.inGuard(at) {
			e.pending = code
		}
		return Outcome{}, false
	}

	delete(e.held, code)
	if e.pending != code || e.inGuard(at) {
		return Outcome{}, false
	}
	return e.finish(Bound, binding.Code(code)), true
}

// HandleMouse はマウスボタンイベントを処理する。buttonはBTN_*のコード
func (e *Editor) HandleMouse(at time.Time, button uint16, pressed bool) (Outcome, bool) {
	if !e.active || !pressed || e.inGuard(at) {
		return Outcome{}, false
	}
	base, ok := mouseButtons[button]
	if !ok {
		return Outcome{}, false
	}
	return e.finish(Bound, binding.PackModifiers(base, e.modifiers())), true
}
