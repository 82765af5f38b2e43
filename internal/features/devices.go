package features

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/char5742/pedald/internal/pedal"
)

// 既定の検索場所
const (
	DefaultSysfsDir = "/sys/class/hidraw"
	DefaultDevDir   = "/dev"
	DefaultInputDir = "/dev/input/by-id"
)

// HIDInfo はhidrawデバイスのueventから読み取った情報
type HIDInfo struct {
	Bus     uint16
	Vendor  uint16
	Product uint16
	Name    string
	Serial  string
}

// ParseUevent はsysfsのueventファイル（KEY=VALUE 形式）からHIDの情報を読み取る
func ParseUevent(r io.Reader) (HIDInfo, error) {
	var info HIDInfo
	found := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "HID_ID":
			// 例: 0003:000005F3:000000FF
			parts := strings.Split(value, ":")
			if len(parts) != 3 {
				return info, fmt.Errorf("malformed HID_ID %q", value)
			}
			var ids [3]uint64
			for i, p := range parts {
				n, err := strconv.ParseUint(p, 16, 32)
				if err != nil {
					return info, fmt.Errorf("malformed HID_ID %q: %w", value, err)
				}
				ids[i] = n
			}
			info.Bus, info.Vendor, info.Product = uint16(ids[0]), uint16(ids[1]), uint16(ids[2])
			found = true
		case "HID_NAME":
			info.Name = value
		case "HID_UNIQ":
			info.Serial = value
		}
	}
	if err := scanner.Err(); err != nil {
		return info, err
	}
	if !found {
		return info, fmt.Errorf("HID_ID not found")
	}
	return info, nil
}

// Scanner は指定したベンダー/製品IDのhidrawデバイスを探す
type Scanner struct {
	SysfsDir string
	DevDir   string
	Vendor   uint16
	Product  uint16
}

// Scan は一致するペダルをデバイスパス順に返す。
// 個々のデバイスの読み取りに失敗した場合はそのデバイスだけを飛ばす
func (s Scanner) Scan() ([]pedal.Identity, error) {
	entries, err := os.ReadDir(s.SysfsDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.SysfsDir, err)
	}

	var found []pedal.Identity
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "hidraw") {
			continue
		}
		f, err := os.Open(filepath.Join(s.SysfsDir, name, "device", "uevent"))
		if err != nil {
			continue
		}
		info, err := ParseUevent(f)
		f.Close()
		if err != nil || info.Vendor != s.Vendor || info.Product != s.Product {
			continue
		}
		found = append(found, pedal.Identity{
			Path:   filepath.Join(s.DevDir, name),
			Serial: strings.TrimSpace(info.Serial),
			Name:   info.Name,
		})
	}

	sort.Slice(found, func(i, j int) bool {
		return hidrawIndex(found[i].Path) < hidrawIndex(found[j].Path)
	})
	return found, nil
}

// /dev/hidraw10 が /dev/hidraw2 より後になるように番号で比べる
func hidrawIndex(path string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(path), "hidraw"))
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}

// 入力デバイスの種類
type DeviceType int

const (
	DeviceTypeKeyboard DeviceType = iota
	DeviceTypeMouse
)

func (t DeviceType) String() string {
	if t == DeviceTypeMouse {
		return "mouse"
	}
	return "keyboard"
}

// InputDevice はキー取り込みに使うevdevデバイス
type InputDevice struct {
	Name string
	Path string
	Type DeviceType
}

// ScanInputDevices はdir（通常 /dev/input/by-id）からキーボードとマウスのイベントデバイスを探す
func ScanInputDevices(dir string) ([]InputDevice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var devices []InputDevice
	for _, entry := range entries {
		// eventが含まれない場合はスキップ
		if !strings.Contains(entry.Name(), "event") {
			continue
		}
		fullPath := filepath.Join(dir, entry.Name())
		realPath, err := os.Readlink(fullPath)
		if err != nil {
			continue
		}

		// by-idのリンクは相対パス
		absPath := realPath
		if !filepath.IsAbs(realPath) {
			absPath = filepath.Clean(filepath.Join(dir, realPath))
		}

		if strings.Contains(entry.Name(), "kbd") {
			devices = append(devices, InputDevice{Name: entry.Name(), Path: absPath, Type: DeviceTypeKeyboard})
		}
		if strings.Contains(entry.Name(), "mouse") {
			devices = append(devices, InputDevice{Name: entry.Name(), Path: absPath, Type: DeviceTypeMouse})
		}
	}
	return devices, nil
}
