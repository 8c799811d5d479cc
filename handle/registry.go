package handle

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"unsafe"
	"weak"

	"github.com/wippyai/nativebridge/errors"
)

// identity keys an object by dynamic type and address, so the same object
// always maps to the same live handle.
type identity struct {
	typ reflect.Type
	ptr uintptr
}

type entry struct {
	strong any
	weak   func() any
	id     identity
}

func (e *entry) value() any {
	if e.weak != nil {
		return e.weak()
	}
	return e.strong
}

// Registry maps handles to objects owned by the local isolate. Entries are
// strong (kept until Release) or weak (dropped when the object is
// collected). A Registry is safe for concurrent use.
type Registry struct {
	entries   map[Handle]*entry
	index     map[identity]Handle
	observers []Observer
	next      uint64
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	tag       uint16
	closed    bool
}

// NewRegistry creates a registry minting handles with the given isolate tag.
func NewRegistry(tag uint16) *Registry {
	return &Registry{
		tag:     tag,
		entries: make(map[Handle]*entry),
		index:   make(map[identity]Handle),
	}
}

// Tag returns the isolate tag of minted handles.
func (r *Registry) Tag() uint16 {
	return r.tag
}

func identityOf(obj any) (identity, error) {
	v := reflect.ValueOf(obj)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		if v.IsNil() {
			return identity{}, errors.NilPointer(errors.PhaseEncode, nil, v.Type().String())
		}
		return identity{typ: v.Type(), ptr: v.Pointer()}, nil
	case reflect.Invalid:
		return identity{}, errors.InvalidInput(errors.PhaseEncode, "cannot register nil")
	}
	return identity{}, errors.New(errors.PhaseEncode, errors.KindUnsupported).
		GoType(v.Type().String()).
		Detail("only pointer, map and channel values have a stable identity").
		Build()
}

// mint allocates the next handle. Caller holds mu.
func (r *Registry) mint() (Handle, error) {
	if r.closed {
		return 0, errors.Closed(errors.PhaseEncode, "handle registry")
	}
	if r.next == seqMask {
		return 0, errors.Overflow(errors.PhaseEncode, nil, r.next, "handle sequence")
	}
	r.next++
	return Make(r.tag, r.next), nil
}

// Create registers obj strongly and returns its handle. Registering the
// same object again returns the existing handle.
func (r *Registry) Create(obj any) (Handle, error) {
	id, err := identityOf(obj)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	if h, ok := r.index[id]; ok {
		if e := r.entries[h]; e != nil && e.value() != nil {
			r.mu.Unlock()
			return h, nil
		}
		r.drop(h)
	}
	h, err := r.mint()
	if err != nil {
		r.mu.Unlock()
		return 0, err
	}
	r.entries[h] = &entry{strong: obj, id: id}
	r.index[id] = h
	r.mu.Unlock()

	r.notify(Event{Type: EventCreated, Handle: h, Value: obj})
	return h, nil
}

// CreateWeak registers obj without keeping it alive. Once the object is
// collected its handle stops resolving and a later registration of a new
// object mints a fresh handle.
func CreateWeak[T any](r *Registry, obj *T) (Handle, error) {
	if obj == nil {
		return 0, errors.NilPointer(errors.PhaseEncode, nil, fmt.Sprintf("%T", obj))
	}
	id := identity{typ: reflect.TypeOf(obj), ptr: uintptr(unsafe.Pointer(obj))}
	wp := weak.Make(obj)

	r.mu.Lock()
	if h, ok := r.index[id]; ok {
		if e := r.entries[h]; e != nil && e.value() != nil {
			r.mu.Unlock()
			return h, nil
		}
		r.drop(h)
	}
	h, err := r.mint()
	if err != nil {
		r.mu.Unlock()
		return 0, err
	}
	r.entries[h] = &entry{
		id: id,
		weak: func() any {
			if p := wp.Value(); p != nil {
				return p
			}
			return nil
		},
	}
	r.index[id] = h
	r.mu.Unlock()

	runtime.AddCleanup(obj, r.collect, h)
	r.notify(Event{Type: EventCreated, Handle: h, Value: obj})
	return h, nil
}

func (r *Registry) collect(h Handle) {
	r.mu.Lock()
	e, ok := r.entries[h]
	if !ok || e.weak == nil {
		r.mu.Unlock()
		return
	}
	r.drop(h)
	r.mu.Unlock()

	r.notify(Event{Type: EventCollected, Handle: h})
}

// drop removes h from both maps. Caller holds mu.
func (r *Registry) drop(h Handle) {
	e, ok := r.entries[h]
	if !ok {
		return
	}
	delete(r.entries, h)
	if r.index[e.id] == h {
		delete(r.index, e.id)
	}
}

// Resolve returns the object behind h. When expected is non-nil the object
// must be assignable to it. The null handle resolves to nil.
func (r *Registry) Resolve(h Handle, expected reflect.Type) (any, error) {
	if h.IsNull() {
		return nil, nil
	}
	if h.Tag() != r.tag {
		return nil, errors.ForeignHandle(uint64(h), h.Tag(), r.tag)
	}

	r.mu.RLock()
	e, ok := r.entries[h]
	var v any
	if ok {
		v = e.value()
	}
	r.mu.RUnlock()

	if v == nil {
		return nil, errors.InvalidHandle(uint64(h))
	}
	if expected != nil && !reflect.TypeOf(v).AssignableTo(expected) {
		return nil, errors.New(errors.PhaseResolve, errors.KindTypeMismatch).
			GoType(reflect.TypeOf(v).String()).
			Detail("handle %s does not hold a %s", h, expected).
			Value(uint64(h)).
			Build()
	}
	return v, nil
}

// Lookup returns the live handle of obj, if it is registered.
func (r *Registry) Lookup(obj any) (Handle, bool) {
	id, err := identityOf(obj)
	if err != nil {
		return 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.index[id]
	if !ok {
		return 0, false
	}
	if e := r.entries[h]; e == nil || e.value() == nil {
		return 0, false
	}
	return h, true
}

// Release drops the entry for h. It reports whether an entry was removed.
func (r *Registry) Release(h Handle) bool {
	if h.IsNull() || h.Tag() != r.tag {
		return false
	}
	r.mu.Lock()
	e, ok := r.entries[h]
	if !ok {
		r.mu.Unlock()
		return false
	}
	v := e.value()
	r.drop(h)
	r.mu.Unlock()

	if d, ok := v.(Dropper); ok {
		d.Drop()
	}
	r.notify(Event{Type: EventReleased, Handle: h, Value: v})
	return true
}

// Len returns the number of registered entries, including weak entries
// whose objects have not been reported collected yet.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close releases every entry and stops minting handles.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	handles := make([]Handle, 0, len(r.entries))
	for h := range r.entries {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		r.Release(h)
	}
	return nil
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnHandleEvent(e)
	}
}
