package value

import "hash/maphash"

// control byte values, Swiss-table style.
const (
	ctrlEmpty   = 0x80
	ctrlDeleted = 0xFE
)

const groupSize = 8

var mapSeed = maphash.MakeSeed()

// HashMap is a Swiss-table layout hashmap: a control-byte array holding
// empty/deleted/7-bit-hash-fragment markers, with a mirror of the first
// groupSize-1 control bytes appended after the main array so a group scan
// at any index never wraps (spec.md §3.1, §4.1).
type HashMap struct {
	ctrl  []byte // len = cap + groupSize - 1 (mirror tail)
	keys  []*Cell
	vals  []*Cell
	used  []bool // keys[i] bound, distinguishes "absent" from "bound to nil"
	cap   int
	count int
}

// NewHashMap creates an empty hashmap with the given initial capacity
// (rounded up to a power of two, minimum groupSize).
func NewHashMap(capacityHint int) *HashMap {
	c := groupSize
	for c < capacityHint {
		c <<= 1
	}
	m := &HashMap{
		ctrl: make([]byte, c+groupSize-1),
		keys: make([]*Cell, c),
		vals: make([]*Cell, c),
		used: make([]bool, c),
		cap:  c,
	}
	for i := range m.ctrl {
		m.ctrl[i] = ctrlEmpty
	}
	return m
}

func hashKey(k *Cell) uint64 {
	var h maphash.Hash
	h.SetSeed(mapSeed)
	switch k.Kind {
	case KindInt:
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(k.Int >> (8 * i))
		}
		h.Write(buf[:])
	case KindNumber:
		bits := int64(k.Num)
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		h.Write(buf[:])
	case KindSymbol, KindKeyword, KindString:
		h.WriteString(k.Str)
	case KindBool:
		if k.Bool {
			h.WriteByte(1)
		} else {
			h.WriteByte(0)
		}
	case KindNil:
		h.WriteByte(0xAA)
	default:
		h.WriteString(k.String())
	}
	return h.Sum64()
}

func (m *HashMap) probeSeq(h uint64) (startGroup int, h7 byte) {
	groups := m.cap / groupSize
	if groups == 0 {
		groups = 1
	}
	startGroup = int(h>>7) % groups
	h7 = byte(h&0x7F) | 0 // top bit always 0, distinct from ctrlEmpty/ctrlDeleted
	return
}

func (m *HashMap) maybeGrow() {
	if m.count*8 < m.cap*7 {
		return
	}
	old := m
	grown := NewHashMap(m.cap * 2)
	for i := 0; i < old.cap; i++ {
		if old.used[i] {
			grown.Put(old.keys[i], old.vals[i])
		}
	}
	*m = *grown
}

// Put inserts or replaces the binding for key, retaining both key and
// value. Returns the previous value, or nil if the key was absent.
func (m *HashMap) Put(key, val *Cell) *Cell {
	m.maybeGrow()
	h := hashKey(key)
	group, h7 := m.probeSeq(h)
	firstDeleted := -1
	for probe := 0; probe < m.cap/groupSize+1; probe++ {
		base := ((group + probe) % (m.cap / groupSize)) * groupSize
		for i := 0; i < groupSize; i++ {
			idx := base + i
			ctrl := m.ctrl[idx]
			if ctrl == h7 && m.used[idx] && Equal(m.keys[idx], key) {
				old := m.vals[idx]
				m.vals[idx] = Retain(val)
				Release(old)
				return old
			}
			if ctrl == ctrlDeleted && firstDeleted < 0 {
				firstDeleted = idx
			}
			if ctrl == ctrlEmpty {
				slot := idx
				if firstDeleted >= 0 {
					slot = firstDeleted
				}
				m.insertAt(slot, h7, key, val)
				return nil
			}
		}
	}
	// Table full despite maybeGrow's load-factor check; fall back to a
	// deleted slot if one exists, otherwise grow once more and retry.
	if firstDeleted >= 0 {
		m.insertAt(firstDeleted, h7, key, val)
		return nil
	}
	grown := NewHashMap(m.cap * 2)
	for i := 0; i < m.cap; i++ {
		if m.used[i] {
			grown.Put(m.keys[i], m.vals[i])
		}
	}
	*m = *grown
	return m.Put(key, val)
}

func (m *HashMap) insertAt(idx int, h7 byte, key, val *Cell) {
	m.ctrl[idx] = h7
	if idx < groupSize-1 {
		m.ctrl[m.cap+idx] = h7
	}
	m.keys[idx] = Retain(key)
	m.vals[idx] = Retain(val)
	m.used[idx] = true
	m.count++
}

// Get looks up key. The second return distinguishes "key missing" (false)
// from "key bound to nil" (true, value == Nil()), per spec.md §4.1.
func (m *HashMap) Get(key *Cell) (*Cell, bool) {
	idx := m.find(key)
	if idx < 0 {
		return nil, false
	}
	return m.vals[idx], true
}

func (m *HashMap) find(key *Cell) int {
	if m.cap == 0 {
		return -1
	}
	h := hashKey(key)
	group, h7 := m.probeSeq(h)
	groups := m.cap / groupSize
	for probe := 0; probe < groups+1; probe++ {
		base := ((group + probe) % groups) * groupSize
		sawEmpty := false
		for i := 0; i < groupSize; i++ {
			idx := base + i
			ctrl := m.ctrl[idx]
			if ctrl == ctrlEmpty {
				sawEmpty = true
				continue
			}
			if ctrl == h7 && m.used[idx] && Equal(m.keys[idx], key) {
				return idx
			}
		}
		if sawEmpty {
			return -1
		}
	}
	return -1
}

// Delete removes a key, releasing its retained key and value. Returns
// whether the key was present.
func (m *HashMap) Delete(key *Cell) bool {
	idx := m.find(key)
	if idx < 0 {
		return false
	}
	Release(m.keys[idx])
	Release(m.vals[idx])
	m.keys[idx] = nil
	m.vals[idx] = nil
	m.used[idx] = false
	m.ctrl[idx] = ctrlDeleted
	if idx < groupSize-1 {
		m.ctrl[m.cap+idx] = ctrlDeleted
	}
	m.count--
	return true
}

func (m *HashMap) Size() int { return m.count }

func (m *HashMap) Keys() []*Cell {
	out := make([]*Cell, 0, m.count)
	for i := 0; i < m.cap; i++ {
		if m.used[i] {
			out = append(out, m.keys[i])
		}
	}
	return out
}

func (m *HashMap) Values() []*Cell {
	out := make([]*Cell, 0, m.count)
	for i := 0; i < m.cap; i++ {
		if m.used[i] {
			out = append(out, m.vals[i])
		}
	}
	return out
}

func (m *HashMap) Entries() []FieldEntry {
	out := make([]FieldEntry, 0, m.count)
	for i := 0; i < m.cap; i++ {
		if m.used[i] {
			out = append(out, FieldEntry{Name: m.keys[i].String(), Value: m.vals[i]})
		}
	}
	return out
}

// Merge copies every binding of other into m, overwriting on conflict.
func (m *HashMap) Merge(other *HashMap) {
	for i := 0; i < other.cap; i++ {
		if other.used[i] {
			m.Put(other.keys[i], other.vals[i])
		}
	}
}

func (m *HashMap) releaseAll() {
	for i := 0; i < m.cap; i++ {
		if m.used[i] {
			Release(m.keys[i])
			Release(m.vals[i])
		}
	}
}
