// Package workerutil はバックグラウンドワーカーをpanicから復帰させながら動かす
package workerutil

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultMaxRetries     = 10
)

// RecoveryOptions はRunWithPanicRecoveryの再起動の挙動。ゼロ値の項目は既定値になる
type RecoveryOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int

	// OnPanic はpanicから復帰するたびに呼ばれる。attemptは1始まり
	OnPanic func(worker string, attempt int)
	// OnFatal は再起動の上限に達して止まるときに呼ばれる
	OnFatal func(worker string, maxRetries int)

	Logger *zerolog.Logger
}

func (opts RecoveryOptions) applyDefaults() RecoveryOptions {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	return opts
}

// RunWithPanicRecovery はfnを新しいゴルーチンで動かし、panicした場合は
// 間隔を倍々にしながら再起動する。fnが普通に戻るかctxが終わると止まる。
// ゴルーチンはwgで追跡する
func RunWithPanicRecovery(ctx context.Context, name string, wg *sync.WaitGroup, fn func(ctx context.Context), opts RecoveryOptions) {
	opts = opts.applyDefaults()
	wg.Add(1)
	go func() {
		defer wg.Done()
		runRecoveryLoop(ctx, name, fn, opts)
	}()
}

func runRecoveryLoop(ctx context.Context, name string, fn func(ctx context.Context), opts RecoveryOptions) {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("worker", name).Logger()
	}
	delay := opts.InitialBackoff

	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		panicked := false
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("worker recovered from panic")
					panicked = true
				}
			}()
			fn(ctx)
		}()

		if !panicked || ctx.Err() != nil {
			return
		}

		logger.Warn().Dur("delay", delay).Int("attempt", attempt+1).Msg("restarting worker after panic")
		if opts.OnPanic != nil {
			opts.OnPanic(name, attempt+1)
		}
		if attempt == opts.MaxRetries-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = nextBackoff(delay, opts.MaxBackoff)
	}

	logger.Error().Int("max_retries", opts.MaxRetries).Msg("worker exceeded max retries, giving up")
	if opts.OnFatal != nil {
		opts.OnFatal(name, opts.MaxRetries)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	next := current * 2
	if next > maxBackoff || next < current {
		return maxBackoff
	}
	return next
}
