package features

import (
	"context"
	"fmt"
	"sync"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"github.com/rs/zerolog"

	"github.com/char5742/pedald/internal/workerutil"
)

// CaptureSink はキー取り込み中に読み取った入力を受け取る
type CaptureSink interface {
	HandleCaptureKey(at time.Time, code uint16, value int32)
	HandleCaptureMouse(at time.Time, button uint16, pressed bool)
}

// InputCapture はキー取り込みの間だけキーボードとマウスのevdevデバイスを読む
type InputCapture struct {
	dir    string
	grab   bool
	sink   CaptureSink
	logger zerolog.Logger

	mu      sync.Mutex
	devices []*evdev.InputDevice
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewInputCapture はdirの入力デバイスを使うInputCaptureを作る。
// grabがtrueなら取り込み中は入力を他のアプリケーションに渡さない
func NewInputCapture(dir string, grab bool, sink CaptureSink, logger *zerolog.Logger) *InputCapture {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("subsystem", "capture-input").Logger()
	}
	return &InputCapture{dir: dir, grab: grab, sink: sink, logger: l}
}

// Start は入力デバイスを開いて読み取りを始め、その時点で押されているキーを返す
func (c *InputCapture) Start() ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil, nil
	}

	found, err := ScanInputDevices(c.dir)
	if err != nil {
		return nil, fmt.Errorf("scan input devices: %w", err)
	}
	held := HeldKeys(found)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	for _, info := range found {
		dev, err := evdev.Open(info.Path)
		if err != nil {
			c.logger.Debug().Err(err).Str("path", info.Path).Msg("skipping input device")
			continue
		}
		if c.grab {
			if err := dev.Grab(); err != nil {
				c.logger.Warn().Err(err).Str("path", info.Path).Msg("failed to grab input device")
			}
		}
		c.devices = append(c.devices, dev)

		kind := info.Type
		workerutil.RunWithPanicRecovery(ctx, "capture-input:"+info.Path, &c.wg, func(ctx context.Context) {
			c.read(ctx, dev, kind)
		}, workerutil.RecoveryOptions{Logger: &c.logger})
	}
	if len(c.devices) == 0 {
		c.logger.Warn().Str("dir", c.dir).Msg("no keyboard or mouse available for capture")
	}
	return held, nil
}

// Stop は読み取りを止めてデバイスを閉じる
func (c *InputCapture) Stop() {
	c.mu.Lock()
	cancel, devices := c.cancel, c.devices
	c.cancel, c.devices = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	for _, dev := range devices {
		if c.grab {
			_ = dev.Ungrab()
		}
		_ = dev.Close()
	}
	c.wg.Wait()
}

func (c *InputCapture) read(ctx context.Context, dev *evdev.InputDevice, kind DeviceType) {
	for {
		ev, err := dev.ReadOne()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Debug().Err(err).Stringer("type", kind).Msg("input device read stopped")
			return
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		dispatchKeyEvent(c.sink, time.Now(), uint16(ev.Code), ev.Value)
	}
}

// dispatchKeyEvent はEV_KEYイベントをマウスボタンかキーとしてsinkに渡す
func dispatchKeyEvent(sink CaptureSink, at time.Time, code uint16, value int32) {
	if code >= uint16(evdev.BTN_LEFT) && code <= uint16(evdev.BTN_EXTRA) {
		// マウスボタンはリピートしない
		if value != 2 {
			sink.HandleCaptureMouse(at, code, value == 1)
		}
		return
	}
	sink.HandleCaptureKey(at, code, value)
}
