package runtime

// HashMap is a power-of-two-sized open-addressing map with linear probing
// and tombstones, keyed by interned-string pointer identity (spec §4.4).
// Grounded on original_source/src/hashmap.c: same probe sequence
// (hash & (capacity-1)), same 0.75 max load factor, same tombstone-discard
// rehash.
type HashMap struct {
	entries  []hmEntry
	count    int // live entries + tombstones
	liveOnly int // live entries only
}

type hmEntry struct {
	key   *ObjString
	value Value
	valid bool // false means either empty or tombstone
	tomb  bool
}

const hmMaxLoad = 0.75
const hmInitialCapacity = 8

// NewHashMap returns an empty map.
func NewHashMap() *HashMap {
	return &HashMap{}
}

func (m *HashMap) findEntry(entries []hmEntry, key *ObjString) int {
	capacity := uint32(len(entries))
	index := key.Hash & (capacity - 1)
	var tombstone = -1
	for {
		e := &entries[index]
		if e.key == key && e.valid {
			return int(index)
		}
		if e.key == nil {
			if e.tomb {
				if tombstone == -1 {
					tombstone = int(index)
				}
			} else {
				if tombstone != -1 {
					return tombstone
				}
				return int(index)
			}
		}
		index = (index + 1) & (capacity - 1)
	}
}

func (m *HashMap) grow(newCapacity uint32) {
	newEntries := make([]hmEntry, newCapacity)
	m.liveOnly = 0
	for _, e := range m.entries {
		if !e.valid {
			continue
		}
		idx := m.findEntry(newEntries, e.key)
		newEntries[idx] = hmEntry{key: e.key, value: e.value, valid: true}
		m.liveOnly++
	}
	m.entries = newEntries
	m.count = m.liveOnly
}

// Set inserts or updates key->value. Returns true if the key was newly
// added (did not already exist in the map).
func (m *HashMap) Set(key *ObjString, value Value) bool {
	if len(m.entries) == 0 {
		m.entries = make([]hmEntry, hmInitialCapacity)
	}
	if float64(m.count+1) > float64(len(m.entries))*hmMaxLoad {
		m.grow(uint32(len(m.entries)) * 2)
	}
	idx := m.findEntry(m.entries, key)
	e := &m.entries[idx]
	isNew := !e.valid
	if isNew && !e.tomb {
		m.count++
	}
	*e = hmEntry{key: key, value: value, valid: true}
	if isNew {
		m.liveOnly++
	}
	return isNew
}

// Get looks up key, returning (value, found).
func (m *HashMap) Get(key *ObjString) (Value, bool) {
	if len(m.entries) == 0 {
		return Nil, false
	}
	idx := m.findEntry(m.entries, key)
	e := &m.entries[idx]
	if !e.valid {
		return Nil, false
	}
	return e.value, true
}

// Has reports whether key is present.
func (m *HashMap) Has(key *ObjString) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete marks key's slot with a tombstone. Returns true if a live entry was
// removed.
func (m *HashMap) Delete(key *ObjString) bool {
	if len(m.entries) == 0 {
		return false
	}
	idx := m.findEntry(m.entries, key)
	e := &m.entries[idx]
	if !e.valid {
		return false
	}
	*e = hmEntry{tomb: true}
	m.liveOnly--
	return true
}

// Len reports the number of live entries.
func (m *HashMap) Len() int { return m.liveOnly }

// Each calls fn for every live entry, in unspecified order.
func (m *HashMap) Each(fn func(key *ObjString, value Value)) {
	for _, e := range m.entries {
		if e.valid {
			fn(e.key, e.value)
		}
	}
}

// CopyInto copies every live entry of m into dst, overwriting existing keys.
// Used by OP_INHERIT to copy a superclass's method table into a subclass.
func (m *HashMap) CopyInto(dst *HashMap) {
	m.Each(func(k *ObjString, v Value) {
		dst.Set(k, v)
	})
}

// findKeyBytes looks up a string by its raw bytes/hash without requiring an
// already-allocated ObjString -- used by the intern table (spec §4.4's
// find_key variant).
func (m *HashMap) findKeyBytes(bytesVal []byte, hash uint32) *ObjString {
	if len(m.entries) == 0 {
		return nil
	}
	capacity := uint32(len(m.entries))
	index := hash & (capacity - 1)
	for {
		e := &m.entries[index]
		if e.key == nil && !e.tomb {
			return nil
		}
		if e.valid && e.key.Hash == hash && string(e.key.Bytes) == string(bytesVal) {
			return e.key
		}
		index = (index + 1) & (capacity - 1)
	}
}
