package runner

import (
	"context"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"p5glab/internal/config"
	"p5glab/internal/metrics"
	"p5glab/internal/models"

	"github.com/rs/zerolog"
)

const scriptTimeout = 2 * time.Minute

// ScriptRunner executes restart scripts in the background. Submit hands work
// to a bounded queue and returns immediately; script outcomes only surface in
// logs and metrics, never to the submitter.
type ScriptRunner struct {
	cfg    config.RunnerConfig
	logger *zerolog.Logger

	queue chan models.ActionRef
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

func NewScriptRunner(cfg config.RunnerConfig, logger *zerolog.Logger) *ScriptRunner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &ScriptRunner{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan models.ActionRef, models.RunnerQueueSize),
	}
}

// Start launches the worker goroutines.
func (r *ScriptRunner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	r.logger.Info().Int("workers", r.cfg.Workers).Msg("script runner started")
}

// Stop cancels running scripts and waits for the workers to drain.
func (r *ScriptRunner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Submit queues a restart action. A full queue drops the action with a log
// entry; callers never block on script execution.
func (r *ScriptRunner) Submit(ref models.ActionRef) {
	if ref.Script == "" {
		r.logger.Debug().Str("exp_key", ref.ExpKey).Msg("no restart script configured")
		return
	}

	select {
	case r.queue <- ref:
	default:
		r.logger.Warn().Str("exp_key", ref.ExpKey).Msg("runner queue full, action dropped")
		metrics.IncScriptRun(ref.ExpKey, "dropped")
	}
}

func (r *ScriptRunner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ref := <-r.queue:
			r.run(ctx, ref)
		}
	}
}

func (r *ScriptRunner) run(ctx context.Context, ref models.ActionRef) {
	ctx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	path := filepath.Join(r.cfg.ScriptDir, ref.Script)
	start := time.Now()

	cmd := exec.CommandContext(ctx, "bash", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		r.logger.Error().Err(err).
			Str("exp_key", ref.ExpKey).
			Str("script", path).
			Str("output", string(output)).
			Dur("elapsed", time.Since(start)).
			Msg("restart script failed")
		metrics.IncScriptRun(ref.ExpKey, "error")
		return
	}

	r.logger.Info().
		Str("exp_key", ref.ExpKey).
		Str("script", path).
		Dur("elapsed", time.Since(start)).
		Msg("restart script finished")
	metrics.IncScriptRun(ref.ExpKey, "ok")
}
