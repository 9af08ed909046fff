package optimize

import (
	"sync"
)

// SlicePool reuses slices across short-lived batches, such as the member
// list copied for each room broadcast.
type SlicePool[T any] struct {
	pool sync.Pool
	size int
}

// NewSlicePool creates a pool whose fresh slices have capacity size.
func NewSlicePool[T any](size int) *SlicePool[T] {
	p := &SlicePool[T]{size: size}
	p.pool.New = func() interface{} {
		s := make([]T, 0, size)
		return &s
	}
	return p
}

// Get returns an empty slice.
func (p *SlicePool[T]) Get() *[]T {
	s := p.pool.Get().(*[]T)
	*s = (*s)[:0]
	return s
}

// Put zeroes the slice so pooled memory holds no references, then returns
// it. Slices that grew far past the initial size are dropped.
func (p *SlicePool[T]) Put(s *[]T) {
	if s == nil || cap(*s) > p.size*4 {
		return
	}
	clear((*s)[:cap(*s)])
	*s = (*s)[:0]
	p.pool.Put(s)
}
