package consts

// UIInput デバイスの定数（uinput.hから）
const (
	MaxNameSize = 80         // デバイス名の最大サイズ
	DevCreate   = 0x5501     // デバイス作成用のIOCTL
	DevDestroy  = 0x5502     // デバイス破棄用のIOCTL
	SetEvBit    = 0x40045564 // イベントビット設定用のIOCTL
	SetKeyBit   = 0x40045565 // キービット設定用のIOCTL
	SetRelBit   = 0x40045566 // 相対軸ビット設定用のIOCTL
	BusUsb      = 0x03       // USBバスタイプ
)

// その他のデバイス制御用定数
const (
	AbsSize   = 64         // 絶対座標の配列サイズ
	EVIOCGKEY = 0x80604518 // 押下中キーのビットマップ取得用のIOCTL (KEY_MAX/8+1 バイト)
)

// イベントタイプの定数（input-event-codes.hより）
const (
	Syn       = 0x00 // 同期イベント
	Key       = 0x01 // キーイベント
	Rel       = 0x02 // 相対軸イベント
	SynReport = 0    // イベント報告の同期
	RelX      = 0x00 // X軸
	RelY      = 0x01 // Y軸
)

// キーコード（input-event-codes.hより、必要なもののみ）
const (
	KeyEsc        = 1
	KeyBackspace  = 14
	KeyLeftCtrl   = 29
	KeyLeftShift  = 42
	KeyRightShift = 54
	KeyLeftAlt    = 56
	KeyRightCtrl  = 97
	KeyRightAlt   = 100
	KeyDelete     = 111
	KeyLeftMeta   = 125
	KeyRightMeta  = 126
	KeyMax        = 0x2ff

	MouseBtnLeft   = 0x110 // マウス左ボタン
	MouseBtnRight  = 0x111 // マウス右ボタン
	MouseBtnMiddle = 0x112 // マウス中ボタン
)

// フットペダル（VEC Infinity 系）の既定値
const (
	PedalVendorID  = 0x05F3
	PedalProductID = 0x00FF
)
