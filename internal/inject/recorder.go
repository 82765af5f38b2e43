package inject

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/char5742/pedald/internal/binding"
)

// Injection はRecorderが受け取った1回の送出
type Injection struct {
	Code      binding.Code
	Direction Direction
}

// Recorder は何も送出せずに呼び出しを記録するInjector。
// ドライランモードとテストで使う
type Recorder struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	calls    []Injection
	releases int
	err      error
}

var _ Injector = (*Recorder)(nil)

// maxRecorded を超えた記録は古いものから捨てる
const maxRecorded = 4096

// NewRecorder はRecorderを作る。loggerがnilの場合は記録のみ行う
func NewRecorder(logger *zerolog.Logger) *Recorder {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("subsystem", "inject").Str("mode", "dry-run").Logger()
	}
	return &Recorder{logger: l}
}

// FailWith は以降のInjectでerrを返すようにする
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Inject(code binding.Code, dir Direction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) >= maxRecorded {
		r.calls = append(r.calls[:0], r.calls[len(r.calls)-maxRecorded/2:]...)
	}
	r.calls = append(r.calls, Injection{Code: code, Direction: dir})
	r.logger.Info().Str("code", binding.Name(code)).Stringer("direction", dir).Msg("inject")
	return r.err
}

func (r *Recorder) ReleaseAllModifiers() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases++
	r.logger.Info().Msg("release all modifiers")
	return nil
}

// Calls は記録された送出のコピーを返す
func (r *Recorder) Calls() []Injection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Injection(nil), r.calls...)
}

// Releases はReleaseAllModifiersの呼び出し回数
func (r *Recorder) Releases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releases
}

// Reset は記録を消去する
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.releases = 0
}
