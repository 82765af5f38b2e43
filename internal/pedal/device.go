package pedal

import (
	"sync"
	"time"

	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/inject"
)

// UnmappedBase は未登録デバイスに割り当てる一時的な論理位置の開始値
const UnmappedBase = 100

// IsMappedPosition は論理位置がハードウェアマップ由来のものかどうかを返す
func IsMappedPosition(pos int) bool {
	return pos > 0 && pos < UnmappedBase
}

// Identity は列挙で得られたペダルの識別情報
type Identity struct {
	Path   string // /dev/hidrawN
	Serial string // HID_UNIQ。報告しないデバイスでは空
	Name   string
}

// UniqueID はシリアル番号があればそれを、なければデバイスパスを返す
func (id Identity) UniqueID() string {
	if id.Serial != "" {
		return id.Serial
	}
	return id.Path
}

// Emission はデバイスが送出した1回の押下/解放
type Emission struct {
	Switch    Switch
	Code      binding.Code
	Direction inject.Direction
	Err       error
}

// ReportResult はHandleReportの処理結果
type ReportResult struct {
	Accepted bool
	Mask     byte
	Edges    []Switch
	Emitted  []Emission
}

// Device は接続中のペダル1台の実行時状態。
// レポート読み取りと操作側の両方から呼ばれるため、状態はすべてmuで保護する
type Device struct {
	Identity
	Position int

	mu         sync.Mutex
	bindings   BindingSet
	suppressed bool
	latches    [SwitchCount]Latch
	debounce   Debouncer
	lastMask   byte
}

// NewDevice はデバイスを作る。debounceが0以下ならDefaultDebounceを使う
func NewDevice(id Identity, position int, debounce time.Duration) *Device {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Device{
		Identity: id,
		Position: position,
		debounce: Debouncer{Floor: debounce},
	}
}

// UniqueID はデバイスの一意なIDを返す
func (d *Device) UniqueID() string {
	return d.Identity.UniqueID()
}

// Mapped はデバイスがハードウェアマップに登録済みかどうかを返す
func (d *Device) Mapped() bool {
	return IsMappedPosition(d.Position)
}

// HandleReport はatに受信したビットマスクを処理する。
// 間隔が短すぎるレポートは何も変えずに破棄する。受理したレポートでは
// 全スイッチのレベルをラッチに渡して必要な押下/解放を送出し、立ち上がりエッジを返す
func (d *Device) HandleReport(at time.Time, mask byte, inj inject.Injector) ReportResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.debounce.Accept(at) {
		return ReportResult{Mask: mask}
	}

	result := ReportResult{
		Accepted: true,
		Mask:     mask,
		Edges:    RisingEdges(d.lastMask, mask),
	}

	levels := Levels(mask)
	for _, sw := range Switches {
		code := d.bindings[sw]
		action := d.latches[sw].Step(levels[sw], code, d.suppressed)
		if dir, ok := action.Direction(); ok {
			result.Emitted = append(result.Emitted, d.emit(inj, sw, code, dir))
		}
	}

	d.lastMask = mask
	return result
}

// ReplaceBindings は押下中のスイッチをすべて解放してから新しいバインディングを採用する
func (d *Device) ReplaceBindings(set BindingSet, inj inject.Injector) []Emission {
	d.mu.Lock()
	defer d.mu.Unlock()

	emitted := d.drainLocked(inj)
	d.bindings = set
	return emitted
}

// Drain は押下中のスイッチをすべて解放する。バインディングは変えない
func (d *Device) Drain(inj inject.Injector) []Emission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drainLocked(inj)
}

func (d *Device) drainLocked(inj inject.Injector) []Emission {
	var emitted []Emission
	for _, sw := range Switches {
		if d.latches[sw].Release() && d.bindings[sw].IsBound() {
			emitted = append(emitted, d.emit(inj, sw, d.bindings[sw], inject.Up))
		}
	}
	return emitted
}

func (d *Device) emit(inj inject.Injector, sw Switch, code binding.Code, dir inject.Direction) Emission {
	e := Emission{Switch: sw, Code: code, Direction: dir}
	if inj != nil {
		e.Err = inj.Inject(code, dir)
	}
	return e
}

// SetSuppressed は新しい押下の送出を止めるかどうかを設定する。押下中の解放は止めない
func (d *Device) SetSuppressed(suppressed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suppressed = suppressed
}

// Snapshot はデバイス状態の読み取り専用コピー
type Snapshot struct {
	UniqueID   string
	Path       string
	Serial     string
	Name       string
	Position   int
	Mapped     bool
	Bindings   BindingSet
	Latched    [SwitchCount]bool
	Suppressed bool
	LastMask   byte
}

// Snapshot は現在の状態のコピーを返す
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		UniqueID:   d.Identity.UniqueID(),
		Path:       d.Path,
		Serial:     d.Serial,
		Name:       d.Name,
		Position:   d.Position,
		Mapped:     d.Mapped(),
		Bindings:   d.bindings,
		Suppressed: d.suppressed,
		LastMask:   d.lastMask,
	}
	for _, sw := range Switches {
		s.Latched[sw] = d.latches[sw].Pressed()
	}
	return s
}
