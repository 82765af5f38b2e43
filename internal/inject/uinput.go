package inject

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/consts"
	"github.com/char5742/pedald/internal/types"
	"github.com/char5742/pedald/internal/utils"
)

// DefaultUinputPath はuinputデバイスの既定パス
const DefaultUinputPath = "/dev/uinput"

// Uinput はuinput仮想デバイスにキーイベントを書き込むInjector
type Uinput struct {
	mu     sync.Mutex
	file   *os.File
	out    io.Writer
	logger zerolog.Logger
}

var _ Injector = (*Uinput)(nil)

// NewUinput はpathのuinputを開き、キーボード兼マウスボタンの仮想デバイスを作成する
func NewUinput(path, name string, logger *zerolog.Logger) (*Uinput, error) {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("subsystem", "inject").Logger()
	}

	f, err := createKeyDevice(path, name)
	if err != nil {
		return nil, err
	}
	l.Info().Str("path", path).Str("name", name).Msg("uinput device created")
	return &Uinput{file: f, out: f, logger: l}, nil
}

// newWriterInjector はテスト用に任意のWriterへイベントを書き込むInjectorを作る
func newWriterInjector(w io.Writer) *Uinput {
	return &Uinput{out: w, logger: zerolog.Nop()}
}

func (u *Uinput) Inject(code binding.Code, dir Direction) error {
	if !code.IsBound() {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	strokes := Sequence(code, dir)
	u.logger.Debug().
		Str("code", binding.Name(code)).
		Stringer("direction", dir).
		Int("strokes", len(strokes)).
		Msg("inject")
	return u.write(strokes)
}

func (u *Uinput) ReleaseAllModifiers() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.write(ReleaseModifiersSequence())
}

// Close は仮想デバイスを破棄する
func (u *Uinput) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.file == nil {
		return nil
	}
	_ = utils.IOCtl(u.file, consts.DevDestroy, 0)
	err := u.file.Close()
	u.file = nil
	u.out = io.Discard
	return err
}

// 1ストロークごとにSYN_REPORTを挟み、受け手から順序が見えるようにする
func (u *Uinput) write(strokes []Stroke) error {
	events := make([]types.Event, 0, len(strokes)*2)
	for _, s := range strokes {
		events = append(events, types.KeyEvent(s.Code, s.Pressed), types.SynEvent())
	}

	buf := new(bytes.Buffer)
	for _, ev := range events {
		if err := binary.Write(buf, binary.LittleEndian, ev); err != nil {
			return fmt.Errorf("encode input event: %w", err)
		}
	}
	if _, err := u.out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write input events: %w", err)
	}
	return nil
}

// registration はUI_DEV_CREATE前に発行するビット設定の1件
type registration struct {
	request uintptr
	arg     uintptr
	what    string
}

// registrations は仮想デバイスに登録するイベント種別とコードの一覧。
// マウスボタンをポインタとして認識させるためにREL_X/REL_Yも登録する
func registrations() []registration {
	regs := []registration{{consts.SetEvBit, consts.Key, "EV_KEY"}}
	for _, code := range KeyCodes() {
		regs = append(regs, registration{consts.SetKeyBit, uintptr(code), fmt.Sprintf("key %d", code)})
	}
	return append(regs,
		registration{consts.SetEvBit, consts.Rel, "EV_REL"},
		registration{consts.SetRelBit, consts.RelX, "REL_X"},
		registration{consts.SetRelBit, consts.RelY, "REL_Y"},
	)
}

func createKeyDevice(path, name string) (*os.File, error) {
	f, err := os.OpenFile(path, syscall.O_WRONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	for _, r := range registrations() {
		if err := utils.IOCtl(f, r.request, r.arg); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("register %s: %w", r.what, err)
		}
	}

	dev := types.UserDev{
		Name: types.UinputName(name),
		ID: types.InputID{
			Bustype: consts.BusUsb,
			Vendor:  0x4711,
			Product: 0x0818,
			Version: 1,
		},
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, dev); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("encode uinput_user_dev: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write uinput_user_dev: %w", err)
	}
	if err := utils.IOCtl(f, consts.DevCreate, 0); err != nil {
		_ = f.Close()
		return nil, errors.Join(ErrDeviceCreate, err)
	}
	return f, nil
}

// ErrDeviceCreate はUI_DEV_CREATEが失敗した場合のエラー
var ErrDeviceCreate = errors.New("uinput device creation failed")
