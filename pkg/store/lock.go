package store

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// goroutineID extracts the calling goroutine's id from its stack trace
// header ("goroutine 123 [running]:"). The gateway's lock must be
// re-entrant per-goroutine, and Go has no built-in equivalent.
func goroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	fields := bytes.Fields(buf)
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseInt(string(fields[1]), 10, 64)
	return id
}

// reentrantLock serialises gateway mutations across goroutines while
// allowing the goroutine already holding it to re-enter (a listener that
// performs another insert/update/delete during propagation).
type reentrantLock struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner int64
	depth int
}

func newReentrantLock() *reentrantLock {
	l := &reentrantLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *reentrantLock) Lock() {
	gid := goroutineID()
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.depth > 0 && l.owner != gid {
		l.cond.Wait()
	}
	l.owner = gid
	l.depth++
}

func (l *reentrantLock) Unlock() {
	gid := goroutineID()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth == 0 || l.owner != gid {
		panic("store: unlock of reentrantLock not held by the calling goroutine")
	}
	l.depth--
	if l.depth == 0 {
		l.owner = 0
		l.cond.Signal()
	}
}
