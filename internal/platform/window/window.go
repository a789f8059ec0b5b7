package window

import "sync"

type Source interface {
	OnFocus(fn func()) (remove func())
	OnVisibilityChange(fn func(visible bool)) (remove func())
}

// Emitter is a Source driven by explicit Focus / SetVisible calls.
// Listeners run synchronously on the caller's goroutine.
type Emitter struct {
	mu         sync.Mutex
	nextID     uint64
	focus      map[uint64]func()
	visibility map[uint64]func(bool)
	visible    bool
}

func NewEmitter() *Emitter {
	return &Emitter{
		focus:      map[uint64]func(){},
		visibility: map[uint64]func(bool){},
		visible:    true,
	}
}

func (e *Emitter) OnFocus(fn func()) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.focus[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.focus, id)
			e.mu.Unlock()
		})
	}
}

func (e *Emitter) OnVisibilityChange(fn func(bool)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.visibility[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.visibility, id)
			e.mu.Unlock()
		})
	}
}

func (e *Emitter) Focus() {
	e.mu.Lock()
	targets := make([]func(), 0, len(e.focus))
	for _, fn := range e.focus {
		targets = append(targets, fn)
	}
	e.mu.Unlock()
	for _, fn := range targets {
		fn()
	}
}

// SetVisible notifies listeners only when visibility actually changes.
func (e *Emitter) SetVisible(visible bool) {
	e.mu.Lock()
	if e.visible == visible {
		e.mu.Unlock()
		return
	}
	e.visible = visible
	targets := make([]func(bool), 0, len(e.visibility))
	for _, fn := range e.visibility {
		targets = append(targets, fn)
	}
	e.mu.Unlock()
	for _, fn := range targets {
		fn(visible)
	}
}

func (e *Emitter) Visible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible
}

func (e *Emitter) Listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.focus) + len(e.visibility)
}
