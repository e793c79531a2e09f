package audio

import (
	"io"
	"sync"
	"sync/atomic"
)

// pcmQueue hands captured buffers from the driver callback to the reader.
// The callback never blocks: when the reader falls behind, the newest buffer
// is dropped and counted.
type pcmQueue struct {
	chunks  chan []byte
	stopped chan struct{}
	once    sync.Once
	dropped atomic.Int64

	pending []byte
}

func newPCMQueue(capacity int) *pcmQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &pcmQueue{
		chunks:  make(chan []byte, capacity),
		stopped: make(chan struct{}),
	}
}

func (q *pcmQueue) push(data []byte) {
	if len(data) == 0 {
		return
	}
	select {
	case <-q.stopped:
		return
	default:
	}

	buf := append([]byte(nil), data...)
	select {
	case q.chunks <- buf:
	default:
		q.dropped.Add(1)
	}
}

// Read blocks until audio is available. After close it drains what is left
// and then returns io.EOF.
func (q *pcmQueue) Read(p []byte) (int, error) {
	if len(q.pending) == 0 {
		select {
		case chunk := <-q.chunks:
			q.pending = chunk
		case <-q.stopped:
			select {
			case chunk := <-q.chunks:
				q.pending = chunk
			default:
				return 0, io.EOF
			}
		}
	}

	n := copy(p, q.pending)
	q.pending = q.pending[n:]
	return n, nil
}

func (q *pcmQueue) close() {
	q.once.Do(func() { close(q.stopped) })
}

func (q *pcmQueue) droppedChunks() int64 {
	return q.dropped.Load()
}
