package pedal

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/inject"
)

const (
	codeCtrlGrave binding.Code = 0x20029
	codeA         binding.Code = 30
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestDevice(set BindingSet) *Device {
	d := NewDevice(Identity{Path: "/dev/hidraw0", Serial: "serial123"}, 1, 0)
	d.ReplaceBindings(set, nil)
	return d
}

func TestSwitchMasks(t *testing.T) {
	assert.Equal(t, byte(0x01), Left.Mask())
	assert.Equal(t, byte(0x02), Middle.Mask())
	assert.Equal(t, byte(0x04), Right.Mask())
}

func TestParseSwitch(t *testing.T) {
	tests := []struct {
		in   string
		want Switch
	}{
		{"left", Left},
		{"Middle", Middle},
		{" RIGHT ", Right},
		{"0", Left},
		{"2", Right},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSwitch(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseSwitch("pedal")
	assert.Error(t, err)
	_, err = ParseSwitch("3")
	assert.Error(t, err)
}

func TestSwitchTextRoundTrip(t *testing.T) {
	for _, sw := range Switches {
		text, err := sw.MarshalText()
		require.NoError(t, err)
		var got Switch
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, sw, got)
	}
	_, err := Switch(7).MarshalText()
	assert.Error(t, err)
}

func TestDebouncer(t *testing.T) {
	var d Debouncer
	d.Floor = DefaultDebounce

	assert.True(t, d.Accept(t0), "first report is always accepted")
	assert.False(t, d.Accept(t0.Add(5*time.Millisecond)))
	assert.False(t, d.Accept(t0.Add(11*time.Millisecond)), "rejected reports do not move the reference time")
	assert.True(t, d.Accept(t0.Add(12*time.Millisecond)))
	assert.False(t, d.Accept(t0.Add(23*time.Millisecond)))
	assert.True(t, d.Accept(t0.Add(24*time.Millisecond)))

	d.Reset()
	assert.True(t, d.Accept(t0.Add(25*time.Millisecond)))
}

func TestReportMask(t *testing.T) {
	mask, ok := ReportMask([]byte{0x05, 0x00}, 0)
	assert.True(t, ok)
	assert.Equal(t, byte(0x05), mask)

	mask, ok = ReportMask([]byte{0x00, 0x02}, 1)
	assert.True(t, ok)
	assert.Equal(t, byte(0x02), mask)

	_, ok = ReportMask(nil, 0)
	assert.False(t, ok)
	_, ok = ReportMask([]byte{0x01}, 1)
	assert.False(t, ok)
	_, ok = ReportMask([]byte{0x01}, -1)
	assert.False(t, ok)
}

func TestLevelsIgnoresUndefinedBits(t *testing.T) {
	assert.Equal(t, [SwitchCount]bool{true, false, true}, Levels(0xF5))
	assert.Equal(t, [SwitchCount]bool{}, Levels(0x00))
}

func TestRisingEdges(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur byte
		want      []Switch
	}{
		{"nothing", 0x00, 0x00, nil},
		{"left pressed", 0x00, 0x01, []Switch{Left}},
		{"held", 0x01, 0x01, nil},
		{"released", 0x01, 0x00, nil},
		{"all pressed at once", 0x00, 0x07, []Switch{Left, Middle, Right}},
		{"middle added while left held", 0x01, 0x03, []Switch{Middle}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RisingEdges(tt.prev, tt.cur))
		})
	}
}

func TestLatchStep(t *testing.T) {
	tests := []struct {
		name       string
		pressed    bool
		level      bool
		code       binding.Code
		suppressed bool
		want       Action
		wantAfter  bool
	}{
		{"unbound never transitions", false, true, binding.Unbound, false, ActionNone, false},
		{"press fires down", false, true, codeA, false, ActionDown, true},
		{"held is idempotent", true, true, codeA, false, ActionNone, true},
		{"release fires up", true, false, codeA, false, ActionUp, false},
		{"released stays released", false, false, codeA, false, ActionNone, false},
		{"suppression swallows press", false, true, codeA, true, ActionNone, false},
		{"suppression never blocks up", true, false, codeA, true, ActionUp, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Latch{pressed: tt.pressed}
			assert.Equal(t, tt.want, l.Step(tt.level, tt.code, tt.suppressed))
			assert.Equal(t, tt.wantAfter, l.Pressed())
		})
	}
}

func TestDeviceIgnoresReportsInsideDebounceFloor(t *testing.T) {
	rec := inject.NewRecorder(nil)
	d := newTestDevice(BindingSet{codeA, 0, 0})

	first := d.HandleReport(t0, 0x00, rec)
	require.True(t, first.Accepted)

	second := d.HandleReport(t0.Add(5*time.Millisecond), 0x01, rec)
	assert.False(t, second.Accepted)
	assert.Empty(t, second.Edges)
	assert.Empty(t, second.Emitted)
	assert.Empty(t, rec.Calls())
	assert.Equal(t, [SwitchCount]bool{}, d.Snapshot().Latched)
	assert.Equal(t, byte(0x00), d.Snapshot().LastMask, "level is not updated by a discarded report")
}

func TestDeviceHeldSwitchInjectsOneDown(t *testing.T) {
	rec := inject.NewRecorder(nil)
	d := newTestDevice(BindingSet{codeCtrlGrave, 0, 0})

	edges := 0
	for i := 0; i < 10; i++ {
		res := d.HandleReport(t0.Add(time.Duration(i)*15*time.Millisecond), 0x01, rec)
		require.True(t, res.Accepted)
		edges += len(res.Edges)
	}
	assert.Equal(t, []inject.Injection{{Code: codeCtrlGrave, Direction: inject.Down}}, rec.Calls())
	assert.Equal(t, 1, edges)

	d.HandleReport(t0.Add(150*time.Millisecond), 0x00, rec)
	assert.Equal(t, []inject.Injection{
		{Code: codeCtrlGrave, Direction: inject.Down},
		{Code: codeCtrlGrave, Direction: inject.Up},
	}, rec.Calls())
}

func TestDeviceSuppressionBlocksDownsOnly(t *testing.T) {
	rec := inject.NewRecorder(nil)
	d := newTestDevice(BindingSet{codeA, codeA, 0})

	d.SetSuppressed(true)
	res := d.HandleReport(t0, 0x01, rec)
	assert.Empty(t, res.Emitted)
	assert.Equal(t, []Switch{Left}, res.Edges, "edges are still reported while suppressed")

	d.HandleReport(t0.Add(20*time.Millisecond), 0x00, rec)
	assert.Empty(t, rec.Calls(), "no up for a switch that was never latched")

	// 押下中に抑止が始まっても解放は送出される
	d.SetSuppressed(false)
	d.HandleReport(t0.Add(40*time.Millisecond), 0x02, rec)
	d.SetSuppressed(true)
	d.HandleReport(t0.Add(60*time.Millisecond), 0x00, rec)
	assert.Equal(t, []inject.Injection{
		{Code: codeA, Direction: inject.Down},
		{Code: codeA, Direction: inject.Up},
	}, rec.Calls())
}

func TestDeviceUnboundSwitchStillReportsEdges(t *testing.T) {
	rec := inject.NewRecorder(nil)
	d := newTestDevice(BindingSet{})

	res := d.HandleReport(t0, 0x04, rec)
	assert.Equal(t, []Switch{Right}, res.Edges)
	assert.Empty(t, res.Emitted)
	assert.Empty(t, rec.Calls())
}

func TestReplaceBindingsDrainsBeforeAdopting(t *testing.T) {
	rec := inject.NewRecorder(nil)
	d := newTestDevice(BindingSet{codeCtrlGrave, 0, codeA})

	d.HandleReport(t0, 0x05, rec)
	rec.Reset()

	next := BindingSet{codeA, codeA, codeA}
	emitted := d.ReplaceBindings(next, rec)

	assert.Equal(t, []inject.Injection{
		{Code: codeCtrlGrave, Direction: inject.Up},
		{Code: codeA, Direction: inject.Up},
	}, rec.Calls(), "ups carry the old codes")
	assert.Len(t, emitted, 2)
	assert.Equal(t, next, d.Snapshot().Bindings)
	assert.Equal(t, [SwitchCount]bool{}, d.Snapshot().Latched)

	// 押されたままのスイッチは新しいバインディングで再び押下になる
	rec.Reset()
	d.HandleReport(t0.Add(20*time.Millisecond), 0x05, rec)
	assert.Equal(t, []inject.Injection{
		{Code: codeA, Direction: inject.Down},
		{Code: codeA, Direction: inject.Down},
	}, rec.Calls())
}

func TestDrainKeepsBindings(t *testing.T) {
	rec := inject.NewRecorder(nil)
	set := BindingSet{codeA, 0, 0}
	d := newTestDevice(set)
	d.HandleReport(t0, 0x01, rec)
	rec.Reset()

	d.Drain(rec)
	assert.Equal(t, []inject.Injection{{Code: codeA, Direction: inject.Up}}, rec.Calls())
	assert.Equal(t, set, d.Snapshot().Bindings)

	rec.Reset()
	d.Drain(rec)
	assert.Empty(t, rec.Calls(), "drain is idempotent")
}

func TestInjectorErrorsDoNotBlockTransitions(t *testing.T) {
	rec := inject.NewRecorder(nil)
	rec.FailWith(errors.New("uinput gone"))
	d := newTestDevice(BindingSet{codeA, 0, 0})

	res := d.HandleReport(t0, 0x01, rec)
	require.Len(t, res.Emitted, 1)
	assert.Error(t, res.Emitted[0].Err)
	assert.True(t, d.Snapshot().Latched[Left])

	res = d.HandleReport(t0.Add(20*time.Millisecond), 0x00, rec)
	require.Len(t, res.Emitted, 1)
	assert.Equal(t, inject.Up, res.Emitted[0].Direction)
	assert.False(t, d.Snapshot().Latched[Left])
}

// 乱数で操作列を作り、押下と解放が必ず対になることを確かめる
func TestDownUpPairingUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rec := inject.NewRecorder(nil)
	d := newTestDevice(BindingSet{codeA, codeCtrlGrave, 0})
	codes := []binding.Code{0, codeA, codeCtrlGrave, 0xFF01}

	at := t0
	for i := 0; i < 2000; i++ {
		at = at.Add(time.Duration(rng.Intn(20)) * time.Millisecond)
		switch rng.Intn(10) {
		case 0:
			d.ReplaceBindings(BindingSet{codes[rng.Intn(4)], codes[rng.Intn(4)], codes[rng.Intn(4)]}, rec)
		case 1:
			d.SetSuppressed(rng.Intn(2) == 0)
		case 2:
			d.Drain(rec)
		default:
			d.HandleReport(at, byte(rng.Intn(8)), rec)
		}
	}
	d.Drain(rec)

	// スイッチごとの押下中コード。解放は押下と同じコードでなければならない
	// Recorderはスイッチを記録しないので、コードごとの未解放数で確かめる
	outstanding := map[binding.Code]int{}
	for _, call := range rec.Calls() {
		switch call.Direction {
		case inject.Down:
			outstanding[call.Code]++
			assert.LessOrEqual(t, outstanding[call.Code], SwitchCount)
		case inject.Up:
			outstanding[call.Code]--
			assert.GreaterOrEqual(t, outstanding[call.Code], 0, "up without a matching down for %v", call.Code)
		}
	}
	for code, n := range outstanding {
		assert.Zero(t, n, "code %v left held", code)
	}
}

func TestDevicePairingPerSwitch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	d := newTestDevice(BindingSet{codeA, codeA, codeA})
	latched := [SwitchCount]bool{}

	at := t0
	for i := 0; i < 1000; i++ {
		at = at.Add(time.Duration(5+rng.Intn(20)) * time.Millisecond)
		var res ReportResult
		if rng.Intn(8) == 0 {
			for _, e := range d.ReplaceBindings(BindingSet{codeA, codeA, codeA}, nil) {
				require.Equal(t, inject.Up, e.Direction)
				require.True(t, latched[e.Switch])
				latched[e.Switch] = false
			}
			continue
		}
		res = d.HandleReport(at, byte(rng.Intn(8)), nil)
		for _, e := range res.Emitted {
			if e.Direction == inject.Down {
				require.False(t, latched[e.Switch], "second down on %v", e.Switch)
				latched[e.Switch] = true
			} else {
				require.True(t, latched[e.Switch], "up without down on %v", e.Switch)
				latched[e.Switch] = false
			}
		}
		require.Equal(t, latched, d.Snapshot().Latched)
	}
}

func TestIdentityUniqueID(t *testing.T) {
	assert.Equal(t, "serial123", Identity{Path: "/dev/hidraw0", Serial: "serial123"}.UniqueID())
	assert.Equal(t, "/dev/hidraw3", Identity{Path: "/dev/hidraw3"}.UniqueID())
}

func TestIsMappedPosition(t *testing.T) {
	assert.True(t, IsMappedPosition(1))
	assert.True(t, IsMappedPosition(99))
	assert.False(t, IsMappedPosition(0))
	assert.False(t, IsMappedPosition(UnmappedBase))
	assert.False(t, IsMappedPosition(150))
}
