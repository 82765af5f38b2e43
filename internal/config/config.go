package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/char5742/pedald/internal/consts"
	"github.com/char5742/pedald/internal/features"
	"github.com/char5742/pedald/internal/hardwaremap"
	"github.com/char5742/pedald/internal/inject"
	"github.com/char5742/pedald/internal/pedal"
	"github.com/char5742/pedald/internal/profile"
)

// AppName は設定ディレクトリの名前
const AppName = "pedald"

// FileName は設定ファイルの名前
const FileName = "config.toml"

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Pedal   PedalConfig   `toml:"pedal"`
	Capture CaptureConfig `toml:"capture"`
	Storage StorageConfig `toml:"storage"`
	Inject  InjectConfig  `toml:"inject"`
	Monitor MonitorConfig `toml:"monitor"`
	API     APIConfig     `toml:"api"`
	Log     LogConfig     `toml:"log"`
}

// PedalConfig はペダルの検出とレポート処理の設定
type PedalConfig struct {
	VendorID     uint16        `toml:"vendor_id"`
	ProductID    uint16        `toml:"product_id"`
	ReportOffset int           `toml:"report_offset"`
	Debounce     time.Duration `toml:"debounce"`
}

// CaptureConfig はキー取り込みの設定
type CaptureConfig struct {
	Guard time.Duration `toml:"guard"`
	Grab  bool          `toml:"grab"`
}

// StorageConfig はプロファイルとハードウェアマップの保存先
type StorageConfig struct {
	// Dir が空なら設定ディレクトリ
	Dir            string `toml:"dir"`
	DefaultProfile string `toml:"default_profile"`
	HardwareMap    string `toml:"hardware_map"`
}

// InjectConfig は仮想キーボードの設定
type InjectConfig struct {
	UinputPath string `toml:"uinput_path"`
	DeviceName string `toml:"device_name"`
}

// MonitorConfig はホットプラグ監視の設定
type MonitorConfig struct {
	RescanDelay  time.Duration `toml:"rescan_delay"`
	PollInterval time.Duration `toml:"poll_interval"`
	HidrawDir    string        `toml:"hidraw_dir"`
	SysfsDir     string        `toml:"sysfs_dir"`
	InputDir     string        `toml:"input_dir"`
}

// APIConfig はHTTP APIの設定
type APIConfig struct {
	Listen string `toml:"listen"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		Pedal: PedalConfig{
			VendorID:     consts.PedalVendorID,
			ProductID:    consts.PedalProductID,
			ReportOffset: pedal.DefaultReportOffset,
			Debounce:     pedal.DefaultDebounce,
		},
		Capture: CaptureConfig{
			Guard: 300 * time.Millisecond,
			Grab:  true,
		},
		Storage: StorageConfig{
			Dir:            "",
			DefaultProfile: profile.DefaultName,
			HardwareMap:    hardwaremap.DefaultFileName,
		},
		Inject: InjectConfig{
			UinputPath: inject.DefaultUinputPath,
			DeviceName: "pedald virtual keyboard",
		},
		Monitor: MonitorConfig{
			RescanDelay:  500 * time.Millisecond,
			PollInterval: 2 * time.Second,
			HidrawDir:    features.DefaultDevDir,
			SysfsDir:     features.DefaultSysfsDir,
			InputDir:     features.DefaultInputDir,
		},
		API: APIConfig{
			Listen: "127.0.0.1:8080",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// GetDefaultConfigDir はユーザー設定ディレクトリ（$XDG_CONFIG_HOME/pedald）を返す
func GetDefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// StorageDir はプロファイルを置くディレクトリを返す。
// 未設定なら設定ファイルと同じディレクトリ
func (c *Config) StorageDir(configPath string) string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	if configPath != "" {
		return filepath.Dir(configPath)
	}
	if dir, err := GetDefaultConfigDir(); err == nil {
		return dir
	}
	return "."
}

// HardwareMapPath はハードウェアマップファイルのパスを返す
func (c *Config) HardwareMapPath(configPath string) string {
	if filepath.IsAbs(c.Storage.HardwareMap) {
		return c.Storage.HardwareMap
	}
	return filepath.Join(c.StorageDir(configPath), c.Storage.HardwareMap)
}

// Validate は設定値の整合性を確かめる
func (c *Config) Validate() error {
	if c.Pedal.ReportOffset < 0 {
		return fmt.Errorf("pedal.report_offset must not be negative: %d", c.Pedal.ReportOffset)
	}
	if c.Pedal.Debounce < 0 {
		return fmt.Errorf("pedal.debounce must not be negative: %s", c.Pedal.Debounce)
	}
	if c.Capture.Guard < 0 {
		return fmt.Errorf("capture.guard must not be negative: %s", c.Capture.Guard)
	}
	if c.Storage.HardwareMap == "" {
		return fmt.Errorf("storage.hardware_map must not be empty")
	}
	if err := profile.ValidateName(c.Storage.DefaultProfile); err != nil {
		return fmt.Errorf("storage.default_profile: %w", err)
	}
	return nil
}

// LoadConfig は設定ファイルから設定を読み込む
func LoadConfig(configPath string) (*Config, error) {
	// デフォルト設定を用意
	config := DefaultConfig()

	// ファイルが存在しない場合はデフォルト設定を保存して返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	// 設定ファイルの読み込み
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return config, fmt.Errorf("decode %s: %w", configPath, err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// SaveConfig は設定をTOMLファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	// 設定ディレクトリの作成
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	// ファイルを開く（なければ作成）
	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	// TOML形式でエンコードして書き込み
	encoder := toml.NewEncoder(f)
	return encoder.Encode(config)
}
