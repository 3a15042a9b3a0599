package service

import (
	"fmt"
	"runtime/debug"

	"github.com/tendermint/tpu/libs/log"
)

// PanicError is returned by Routine.Join when the routine's function
// panicked instead of returning.
type PanicError struct {
	Routine string
	Value   interface{}
	Stack   []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("routine %s panicked: %v", e.Routine, e.Value)
}

// Routine is a single goroutine running a stage loop. The only thing a
// holder can do with it is wait for it to finish.
type Routine struct {
	name string
	done chan struct{}
	err  error
}

// Go runs fn on a new goroutine. A panic inside fn is recovered and
// reported by Join as a *PanicError.
func Go(logger log.Logger, name string, fn func() error) *Routine {
	r := &Routine{
		name: name,
		done: make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		defer func() {
			if v := recover(); v != nil {
				r.err = &PanicError{Routine: name, Value: v, Stack: debug.Stack()}
				logger.Error("routine panicked", "routine", name, "panic", fmt.Sprint(v))
			}
		}()

		r.err = fn()
	}()

	return r
}

// Name returns the name the routine was started with.
func (r *Routine) Name() string { return r.name }

// Done returns a channel closed once the routine has returned.
func (r *Routine) Done() <-chan struct{} { return r.done }

// Join blocks until the routine returns and yields its result. It is safe to
// call Join more than once.
func (r *Routine) Join() error {
	<-r.done
	return r.err
}
