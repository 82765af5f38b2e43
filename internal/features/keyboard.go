package features

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/char5742/pedald/internal/consts"
)

// keyBitsSize はEVIOCGKEYが返すビットマップのバイト数
const keyBitsSize = consts.KeyMax/8 + 1

// PressedKeys はキーボードのevdevデバイスで現在押されているキーを返す
func PressedKeys(path string) ([]uint16, error) {
	f, err := os.OpenFile(path, syscall.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("デバイスファイルを開くのに失敗しました: %w", err)
	}
	defer f.Close()

	keyBits := make([]byte, keyBitsSize)
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		f.Fd(),
		uintptr(consts.EVIOCGKEY),
		uintptr(unsafe.Pointer(&keyBits[0])),
	)
	if errno != 0 {
		return nil, fmt.Errorf("EVIOCGKEY: %w", errno)
	}
	return decodeKeyBits(keyBits), nil
}

// decodeKeyBits はキー状態のビットマップを押下中のキーコードの一覧にする
func decodeKeyBits(keyBits []byte) []uint16 {
	var pressed []uint16
	for keyCode := 0; keyCode <= consts.KeyMax && keyCode/8 < len(keyBits); keyCode++ {
		if keyBits[keyCode/8]&(1<<(keyCode%8)) != 0 {
			pressed = append(pressed, uint16(keyCode))
		}
	}
	return pressed
}

// HeldKeys はすべてのキーボードで押されているキーをまとめて返す。読めないデバイスは飛ばす
func HeldKeys(devices []InputDevice) []uint16 {
	var held []uint16
	for _, dev := range devices {
		if dev.Type != DeviceTypeKeyboard {
			continue
		}
		keys, err := PressedKeys(dev.Path)
		if err != nil {
			continue
		}
		held = append(held, keys...)
	}
	return held
}
