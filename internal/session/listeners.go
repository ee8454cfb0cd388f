package session

import "sync"

// listeners delivers snapshots to subscribers on one goroutine. Publishing
// never blocks the session loop: only the latest pending snapshot is kept.
type listeners struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(Snapshot)
	latest func() Snapshot

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newListeners() *listeners {
	l := &listeners{
		fns:  make(map[int]func(Snapshot)),
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *listeners) add(fn func(Snapshot)) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.fns[l.nextID] = fn
	return &Subscription{l: l, id: l.nextID}
}

func (l *listeners) remove(id int) {
	l.mu.Lock()
	delete(l.fns, id)
	l.mu.Unlock()
}

// publish records build as the latest snapshot. It is evaluated lazily on
// the delivery goroutine, and only when someone listens.
func (l *listeners) publish(build func() Snapshot) {
	l.mu.Lock()
	if len(l.fns) == 0 {
		l.mu.Unlock()
		return
	}
	l.latest = build
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *listeners) run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		case <-l.wake:
		}
		l.mu.Lock()
		build := l.latest
		l.latest = nil
		fns := make([]func(Snapshot), 0, len(l.fns))
		for id := 1; id <= l.nextID; id++ {
			if fn, ok := l.fns[id]; ok {
				fns = append(fns, fn)
			}
		}
		l.mu.Unlock()
		if build == nil || len(fns) == 0 {
			continue
		}
		snap := build()
		for _, fn := range fns {
			fn(snap)
		}
	}
}

func (l *listeners) stop() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}

// Subscription is the handle returned by Controller.Subscribe.
type Subscription struct {
	l    *listeners
	id   int
	once sync.Once
}

// Close stops delivery to the subscriber. Safe to call repeatedly.
func (s *Subscription) Close() {
	s.once.Do(func() { s.l.remove(s.id) })
}
