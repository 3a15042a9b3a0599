package tracer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tendermint/tpu/libs/autofile"
	"github.com/tendermint/tpu/libs/log"
	"github.com/tendermint/tpu/libs/service"
	"github.com/tendermint/tpu/types"
)

// Outcome is the result of joining the tracer thread. JoinErr is set when
// the thread did not finish normally (it panicked). Reported is the error
// the thread itself returned; it is informational only.
type Outcome struct {
	JoinErr  error
	Reported error
}

// Thread writes trace events to a rotating file, one JSON object per line.
type Thread struct {
	logger  log.Logger
	events  <-chan Event
	file    *autofile.AutoFile
	routine *service.Routine
}

// NewThread opens path for the tracer's events. The file is rotated at
// maxSize bytes, keeping maxFiles old files.
func NewThread(logger log.Logger, tracer *BankingTracer, path string, maxSize int64, maxFiles int) (*Thread, error) {
	if !tracer.Enabled() {
		return nil, errors.New("banking tracer is disabled")
	}
	file, err := autofile.OpenAutoFile(path, autofile.WithRotation(maxSize, maxFiles))
	if err != nil {
		return nil, fmt.Errorf("opening banking trace file: %w", err)
	}
	return &Thread{logger: logger, events: tracer.Events(), file: file}, nil
}

// Start runs the thread until ctx is done or the event stream ends.
func (t *Thread) Start(ctx context.Context) {
	t.routine = service.Go(t.logger, "banking_tracer", func() error {
		return t.run(ctx)
	})
}

// Join waits for the thread.
func (t *Thread) Join() Outcome {
	err := t.routine.Join()
	var perr *service.PanicError
	if errors.As(err, &perr) {
		return Outcome{JoinErr: err}
	}
	return Outcome{Reported: err}
}

func (t *Thread) run(ctx context.Context) error {
	w := &errWriter{w: t.file}
	t.write(ctx, zerolog.New(w).With().Timestamp().Logger())
	if err := t.file.Close(); err != nil {
		w.set(err)
	}
	return w.result()
}

func (t *Thread) write(ctx context.Context, zl zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-t.events:
			if !ok {
				return
			}
			zl.Log().
				Str("channel", ev.Channel).
				Int("txs", ev.Transactions).
				Str("class", ev.Class.String()).
				Send()
		}
	}
}

// errWriter remembers the first write error, which zerolog does not return.
type errWriter struct {
	w io.Writer

	mtx sync.Mutex
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil {
		e.set(err)
	}
	return n, err
}

func (e *errWriter) set(err error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.err == nil {
		e.err = err
	}
}

func (e *errWriter) result() error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.err == nil {
		return nil
	}
	return types.DiagnosticError{Source: "banking_tracer", Err: e.err}
}
