package features

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/char5742/pedald/internal/workerutil"
)

// ReportSize はhidrawから1回に読み取る最大バイト数
const ReportSize = 64

// ReportHandler は受信したレポートを処理する。dataは次の読み取りで上書きされるため保持してはならない
type ReportHandler func(at time.Time, data []byte)

// ReaderOptions はReportReaderの設定
type ReaderOptions struct {
	// Open はデバイスを開く。nilならOpenHidraw
	Open func(path string) (io.ReadCloser, error)
	// RetryDelay はEAGAIN以外の一時的な読み取りエラーのあとに待つ時間
	RetryDelay time.Duration
	// OnReadError は一時的な読み取りエラーのたびに呼ばれる
	OnReadError func(err error)
	// OnStop は切断などで読み取りが終わったときに一度だけ呼ばれる
	OnStop func(err error)
	// Now はレポートの受信時刻。nilならtime.Now
	Now    func() time.Time
	Logger *zerolog.Logger
}

// ReportReader はペダル1台のレポートを専用のゴルーチンで読み続ける。
// 1つのレポートの処理が終わるまで次の読み取りは行わない
type ReportReader struct {
	path    string
	handler ReportHandler
	opts    ReaderOptions
	logger  zerolog.Logger

	mu       sync.Mutex
	src      io.ReadCloser
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// OpenHidraw はhidrawデバイスを読み取り用に開く。
// 非ブロッキングで開くことでCloseがブロック中の読み取りを解除する
func OpenHidraw(path string) (io.ReadCloser, error) {
	f, err := os.OpenFile(path, syscall.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// NewReportReader はReportReaderを作る。デバイスはStartで開く
func NewReportReader(path string, handler ReportHandler, opts ReaderOptions) *ReportReader {
	if opts.Open == nil {
		opts.Open = OpenHidraw
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := zerolog.Nop()
	if opts.Logger != nil {
		l = opts.Logger.With().Str("subsystem", "reader").Str("path", path).Logger()
	}
	return &ReportReader{path: path, handler: handler, opts: opts, logger: l}
}

// Path はデバイスのパスを返す
func (r *ReportReader) Path() string {
	return r.path
}

// Start はデバイスを開いて読み取りを始める
func (r *ReportReader) Start() error {
	src, err := r.opts.Open(r.path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.src = src
	r.cancel = cancel
	r.mu.Unlock()

	workerutil.RunWithPanicRecovery(ctx, "report-reader:"+r.path, &r.wg, func(ctx context.Context) {
		r.loop(ctx, src)
	}, workerutil.RecoveryOptions{Logger: &r.logger})
	r.logger.Debug().Msg("reader started")
	return nil
}

// Stop は読み取りを止め、ゴルーチンの終了を待つ
func (r *ReportReader) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		cancel, src := r.cancel, r.src
		r.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		_ = src.Close()
		r.wg.Wait()
		r.logger.Debug().Msg("reader stopped")
	})
}

func (r *ReportReader) loop(ctx context.Context, src io.Reader) {
	buf := make([]byte, ReportSize)
	for {
		n, err := src.Read(buf)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if IsDisconnect(err) {
				r.logger.Info().Err(err).Msg("device disconnected")
				if r.opts.OnStop != nil {
					r.opts.OnStop(err)
				}
				return
			}
			r.logger.Debug().Err(err).Msg("transient read error")
			if r.opts.OnReadError != nil {
				r.opts.OnReadError(err)
			}
			// EAGAINは次の読み取りがポーラーで待つのですぐに読み直す
			if errors.Is(err, unix.EAGAIN) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.opts.RetryDelay):
			}
			continue
		}
		r.handler(r.opts.Now(), buf[:n])
	}
}

// IsDisconnect は読み取りエラーがデバイスの切断や終了を表すかを返す。
// hidrawは切断後の読み取りにEIOかENODEVを返す
func IsDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, unix.ENODEV) ||
		errors.Is(err, unix.EIO)
}
