package vosk

import "sync"

// future is a single-assignment result. The first call to resolve or reject
// wins; later calls report false and leave the value untouched.
type future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

func (f *future[T]) resolve(v T) bool {
	settled := false
	f.once.Do(func() {
		f.val = v
		settled = true
		close(f.done)
	})
	return settled
}

func (f *future[T]) reject(err error) bool {
	settled := false
	f.once.Do(func() {
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done is closed once the future has settled.
func (f *future[T]) Done() <-chan struct{} { return f.done }

// result must only be called after Done is closed.
func (f *future[T]) result() (T, error) { return f.val, f.err }
