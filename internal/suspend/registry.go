package suspend

// initialRegistryCapacity is the slot count the registry is created with
// when Options does not override it.
const initialRegistryCapacity = 10

// registry is the ordered collection of suspended-thread slots. A slot holds
// either a thread handle or the zero value of T (empty), a handle appears in
// at most one slot, and the slot array grows but never shrinks. It carries no
// locking of its own: the controller mutates it only while holding the
// process-wide suspend lock.
type registry[T comparable] struct {
	slots []T
}

func newRegistry[T comparable](capacity int) *registry[T] {
	if capacity <= 0 {
		capacity = initialRegistryCapacity
	}
	return &registry[T]{slots: make([]T, capacity)}
}

func (r *registry[T]) contains(t T) bool {
	for _, v := range r.slots {
		if v == t {
			return true
		}
	}
	return false
}

// freeSlot returns the index of an empty slot, doubling the slot array when
// every slot is occupied. All new slots are zero-valued.
func (r *registry[T]) freeSlot() int {
	var zero T
	for i, v := range r.slots {
		if v == zero {
			return i
		}
	}
	old := len(r.slots)
	grown := make([]T, old*2)
	copy(grown, r.slots)
	r.slots = grown
	return old
}

func (r *registry[T]) set(i int, t T) {
	r.slots[i] = t
}

// remove clears the slot holding t and reports whether it was present.
func (r *registry[T]) remove(t T) bool {
	var zero T
	for i, v := range r.slots {
		if v == t {
			r.slots[i] = zero
			return true
		}
	}
	return false
}

func (r *registry[T]) count() int {
	var zero T
	n := 0
	for _, v := range r.slots {
		if v != zero {
			n++
		}
	}
	return n
}

func (r *registry[T]) capacity() int {
	return len(r.slots)
}
