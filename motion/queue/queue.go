// Package queue implements the bounded planner FIFO (spec.md §4.1,
// component C7): a ring of block slots with a write pointer, a read
// (oldest-queued) pointer, and a run pointer, using the block's own
// five-state enum as the ownership marker in place of the teacher source's
// pointer-and-magic-number scheme (spec.md §9).
package queue

import (
	"errors"

	"tinygo.org/x/drivers/motion/block"
)

// ErrFull is returned by ReserveWrite when no empty slot exists.
var ErrFull = errors.New("queue: full")

// ErrMagicCorrupt signals the fatal "queue-magic-corrupt" assertion of
// spec.md §7: the queue's internal bookkeeping is no longer consistent,
// which on the original hardware indicated a memory overrun. Here it
// indicates a programming error (an out-of-band index) since there's no
// memory to overrun, but the reaction is the same: stop trusting the
// queue.
var ErrMagicCorrupt = errors.New("queue: magic-corrupt")

// DefaultSize is the default planner buffer pool size (spec.md §6,
// PLANNER_BUFFER_POOL_SIZE, typical 28-48, minimum 12).
const DefaultSize = 32

// MinSize is the minimum legal pool size.
const MinSize = 12

// Queue is a ring of block.Pool slots.
type Queue struct {
	pool *block.Pool
	size int

	head int // index of next empty slot to reserve
	tail int // index of the oldest still-queued slot
	run  int // index of the currently running slot, or -1
}

// New creates a Queue backed by a freshly allocated Pool of size slots.
// A size below MinSize is raised to MinSize.
func New(size int) *Queue {
	if size < MinSize {
		size = MinSize
	}
	return &Queue{
		pool: block.NewPool(size),
		size: size,
		head: 0,
		tail: 0,
		run:  -1,
	}
}

// Len returns the capacity of the queue.
func (q *Queue) Len() int { return q.size }

// Empty reports whether the queue is empty: head == tail and the slot at
// head is empty (spec.md §3 invariant).
func (q *Queue) Empty() bool {
	return q.head == q.tail && q.pool.At(q.head).State == block.StateEmpty
}

func (q *Queue) next(i int) int {
	i++
	if i >= q.size {
		return 0
	}
	return i
}

func (q *Queue) prev(i int) int {
	i--
	if i < 0 {
		return q.size - 1
	}
	return i
}

// ReserveWrite borrows the next empty slot for writing. The returned block
// is freshly zeroed (spec.md §4.1 guarantee 2).
func (q *Queue) ReserveWrite() (*block.Block, int, error) {
	b := q.pool.At(q.head)
	if b.State != block.StateEmpty {
		return nil, 0, ErrFull
	}
	idx := q.head
	b.Reset()
	b.State = block.StateLoading
	return b, idx, nil
}

// CommitWrite transitions the slot at idx from loading to queued. This is
// the single point at which the executor can observe the slot, so it must
// be atomic with respect to any concurrent reader (spec.md §4.1 guarantee
// 3): in Go terms, every field of the block must be written before this
// call, and the state flip is the last write.
func (q *Queue) CommitWrite(idx int, moveType block.MoveType) error {
	b := q.pool.At(idx)
	if b.State != block.StateLoading {
		return ErrMagicCorrupt
	}
	b.MoveType = moveType
	b.Replannable = true
	b.State = block.StateQueued
	q.head = q.next(idx)

	// Clear replannable on the successor slot so back-replan never crosses
	// into a not-yet-built block (spec.md §9, open question 1).
	if nextIdx := q.next(idx); nextIdx != idx {
		q.pool.At(nextIdx).Replannable = false
	}

	if q.run == -1 {
		q.run = idx
	}
	return nil
}

// PeekRun returns the currently running block, or nil if nothing is
// running.
func (q *Queue) PeekRun() *block.Block {
	if q.run == -1 {
		return nil
	}
	b := q.pool.At(q.run)
	if b.State == block.StateEmpty {
		return nil
	}
	return b
}

// RunIndex returns the index of the currently running slot, or -1.
func (q *Queue) RunIndex() int { return q.run }

// BeginRun marks the slot at the run pointer as running. Called by the
// executor when it starts consuming a freshly queued/pending block.
func (q *Queue) BeginRun() error {
	if q.run == -1 {
		return ErrMagicCorrupt
	}
	b := q.pool.At(q.run)
	if b.State != block.StateQueued && b.State != block.StatePending {
		return ErrMagicCorrupt
	}
	b.State = block.StateRunning
	return nil
}

// AdvanceRun frees the running block and advances the run pointer to the
// next queued slot. It must never be called while the running slot is
// still block.StateRunning from the executor's point of view without the
// executor itself having declared completion first (spec.md §4.1 guarantee
// 1). Returns whether the queue is now empty.
func (q *Queue) AdvanceRun() (bool, error) {
	if q.run == -1 {
		return true, ErrMagicCorrupt
	}
	running := q.pool.At(q.run)
	running.State = block.StateEmpty
	finishedIdx := q.run

	if finishedIdx == q.tail {
		q.tail = q.next(q.tail)
	}

	nextIdx := q.next(finishedIdx)
	if nextIdx == q.head && q.pool.At(nextIdx).State == block.StateEmpty {
		q.run = -1
		return true, nil
	}
	q.run = nextIdx
	return false, nil
}

// IterateBackwardFrom returns the indices, nearest-first, of slots newer
// than the run pointer that are still replannable, starting just behind
// idx and walking toward (but never onto) the run slot. This backs the
// trapezoid planner's back-propagation sweep (spec.md §4.3).
func (q *Queue) IterateBackwardFrom(idx int) []int {
	var out []int
	i := q.prev(idx)
	for i != q.run && i != q.prev(q.run) {
		b := q.pool.At(i)
		if b.State != block.StateQueued && b.State != block.StatePending {
			break
		}
		if !b.Replannable {
			break
		}
		out = append(out, i)
		if i == q.tail {
			break
		}
		i = q.prev(i)
	}
	return out
}

// At exposes the slot at idx, for callers (the planner) that already hold
// a valid index from ReserveWrite/IterateBackwardFrom.
func (q *Queue) At(idx int) *block.Block { return q.pool.At(idx) }

// Tail returns the index of the oldest queued slot.
func (q *Queue) Tail() int { return q.tail }

// Flush empties the queue unconditionally (used by the kill path, spec.md
// §5 "Cancellation").
func (q *Queue) Flush() {
	for i := 0; i < q.size; i++ {
		q.pool.At(i).Reset()
	}
	q.head = 0
	q.tail = 0
	q.run = -1
}
