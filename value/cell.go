// Package value implements the uniformly tagged runtime value ("Cell") the
// rest of the core is built on: reference counting, weak references,
// linear/capability flags, and structural equality.
package value

import (
	"fmt"
	"sync/atomic"
)

// Kind discriminates the Cell union.
type Kind uint8

const (
	KindNumber Kind = iota
	KindInt
	KindBool
	KindSymbol
	KindKeyword
	KindString
	KindNil
	KindPair
	KindLambda
	KindBuiltin
	KindError
	KindStruct
	KindGraph
	KindActor
	KindChannel
	KindBox
	KindWeak
	KindHashMap
)

// Capability flags, checked at boundary operations (sends, FFI calls).
const (
	CapRead uint8 = 1 << iota
	CapWrite
	CapExecute
	CapSend
	CapShare
)

// Linear-use flags, enforced by the evaluator on values marked linear.
const (
	FlagUnique uint8 = 1 << iota
	FlagBorrowed
	FlagConsumed
	FlagMarked // reserved for debugging tooling
)

// GraphKind enumerates the structure/graph node shapes.
type GraphKind uint8

const (
	GraphLeaf GraphKind = iota
	GraphNode
	GraphGraphKind
)

// BuiltinFunc is the shape a builtin primitive dispatches through. It is
// supplied by the primitive table, an external collaborator; the core only
// calls through this shape.
type BuiltinFunc func(args []*Cell) *Cell

// header is the shared, reference-counted backing allocation for a Cell.
// Cloning a Cell (passing it by value) shares the header; Retain/Release
// operate on it.
type header struct {
	strong atomic.Int64
	weak   atomic.Int64
}

// Cell is the uniformly tagged value. It is always handled through a
// pointer so that Retain/Release observe the same header.
type Cell struct {
	hdr *header

	Kind  Kind
	flags atomic.Uint32 // packed: low byte = linear flags, next byte = capabilities

	// Scalars
	Num    float64
	Int    int64
	Bool   bool
	Str    string // symbol / keyword / string payload

	// Pair
	Head *Cell
	Tail *Cell

	// Lambda
	Env      *Cell // captured indexed environment (an empty indexed chain at top level)
	Body     *Cell
	Arity    int
	Source   string

	// Builtin
	Fn BuiltinFunc

	// Error
	ErrKind string
	ErrData *Cell

	// Struct / Graph
	GKind    GraphKind
	TypeTag  string
	Variant  string
	Fields   []FieldEntry
	Nodes    []*Cell
	Edges    []*Cell
	Meta     []FieldEntry
	Entry    *Cell
	Exit     *Cell

	// Actor / Channel handle
	HandleID int64

	// Box
	boxed atomic.Pointer[Cell]

	// Weak
	target *Cell

	// HashMap
	Map *HashMap
}

// FieldEntry is one (name . value) pair in a struct's field alist.
type FieldEntry struct {
	Name  string
	Value *Cell
}

func newHeader() *header {
	h := &header{}
	h.strong.Store(1)
	h.weak.Store(0)
	return h
}

func newCell(kind Kind) *Cell {
	return &Cell{hdr: newHeader(), Kind: kind}
}

// Retain increments the strong reference count and returns the same Cell,
// so it can be used inline: `child := Retain(parent.Head)`.
func Retain(c *Cell) *Cell {
	if c == nil {
		return nil
	}
	c.hdr.strong.Add(1)
	return c
}

// Release decrements the strong count; at zero it recursively releases
// every owned child exactly once. Backing memory reclamation itself is
// left to the Go garbage collector (see DESIGN.md, "reference counting vs
// Go GC") — Release's job is to preserve the observable retain/release
// contract spec.md §3.1 and §8 require, not to free bytes.
func Release(c *Cell) {
	if c == nil {
		return
	}
	if c.hdr.strong.Add(-1) != 0 {
		return
	}
	switch c.Kind {
	case KindPair:
		Release(c.Head)
		Release(c.Tail)
	case KindLambda:
		Release(c.Env)
		Release(c.Body)
	case KindError:
		Release(c.ErrData)
	case KindStruct:
		for _, f := range c.Fields {
			Release(f.Value)
		}
		for _, f := range c.Meta {
			Release(f.Value)
		}
	case KindGraph:
		for _, n := range c.Nodes {
			Release(n)
		}
		for _, e := range c.Edges {
			Release(e)
		}
		for _, f := range c.Meta {
			Release(f.Value)
		}
		Release(c.Entry)
		Release(c.Exit)
	case KindBox:
		Release(c.boxed.Load())
	case KindHashMap:
		if c.Map != nil {
			c.Map.releaseAll()
		}
	}
}

// StrongCount reports the current strong reference count; exposed for
// testing the retain/release contract (spec.md §8).
func StrongCount(c *Cell) int64 {
	if c == nil {
		return 0
	}
	return c.hdr.strong.Load()
}

// WeakCount reports the current weak reference count.
func WeakCount(c *Cell) int64 {
	if c == nil {
		return 0
	}
	return c.hdr.weak.Load()
}

// --- Flags ---

func (c *Cell) LinearFlags() uint8   { return uint8(c.flags.Load()) }
func (c *Cell) Capabilities() uint8 { return uint8(c.flags.Load() >> 8) }

func (c *Cell) SetLinearFlags(f uint8) {
	for {
		old := c.flags.Load()
		nw := (old &^ 0xFF) | uint32(f)
		if c.flags.CompareAndSwap(old, nw) {
			return
		}
	}
}

func (c *Cell) SetCapabilities(capFlags uint8) {
	for {
		old := c.flags.Load()
		nw := (old &^ 0xFF00) | uint32(capFlags)<<8
		if c.flags.CompareAndSwap(old, nw) {
			return
		}
	}
}

func (c *Cell) HasCapability(capFlag uint8) bool {
	return c.Capabilities()&capFlag == capFlag
}

// MarkConsumed flags a linear value as consumed; a subsequent read of a
// consumed value is the evaluator's job to reject.
func (c *Cell) MarkConsumed() {
	f := c.LinearFlags()
	c.SetLinearFlags(f | FlagConsumed)
}

func (c *Cell) IsConsumed() bool {
	return c.LinearFlags()&FlagConsumed != 0
}

// --- Constructors ---

func Number(n float64) *Cell {
	c := newCell(KindNumber)
	c.Num = n
	return c
}

func Integer(i int64) *Cell {
	c := newCell(KindInt)
	c.Int = i
	return c
}

func Boolean(b bool) *Cell {
	c := newCell(KindBool)
	c.Bool = b
	return c
}

func Symbol(s string) *Cell {
	c := newCell(KindSymbol)
	c.Str = s
	return c
}

func Keyword(s string) *Cell {
	c := newCell(KindKeyword)
	c.Str = s
	return c
}

func String(s string) *Cell {
	c := newCell(KindString)
	c.Str = s
	return c
}

var nilCell = newCell(KindNil)

// Nil returns the (shared, immortal) nil value.
func Nil() *Cell { return nilCell }

// Cons builds a pair, retaining both children per spec.md §3.1's
// publication invariant ("creating a pair ... retains every owned child
// before publication").
func Cons(head, tail *Cell) *Cell {
	c := newCell(KindPair)
	c.Head = Retain(head)
	c.Tail = Retain(tail)
	return c
}

func Lambda(env, body *Cell, arity int, source string) *Cell {
	c := newCell(KindLambda)
	c.Env = Retain(env)
	c.Body = Retain(body)
	c.Arity = arity
	c.Source = source
	return c
}

func Builtin(fn BuiltinFunc) *Cell {
	c := newCell(KindBuiltin)
	c.Fn = fn
	return c
}

func Error(kind string, data *Cell) *Cell {
	c := newCell(KindError)
	c.ErrKind = kind
	c.Str = kind
	c.ErrData = Retain(data)
	return c
}

func Struct(gkind GraphKind, typeTag, variant string, fields []FieldEntry) *Cell {
	c := newCell(KindStruct)
	c.GKind = gkind
	c.TypeTag = typeTag
	c.Variant = variant
	c.Fields = make([]FieldEntry, len(fields))
	for i, f := range fields {
		c.Fields[i] = FieldEntry{Name: f.Name, Value: Retain(f.Value)}
	}
	return c
}

func Graph(typeTag string, nodes, edges []*Cell, meta []FieldEntry, entry, exit *Cell) *Cell {
	c := newCell(KindGraph)
	c.GKind = GraphGraphKind
	c.TypeTag = typeTag
	c.Nodes = make([]*Cell, len(nodes))
	for i, n := range nodes {
		c.Nodes[i] = Retain(n)
	}
	c.Edges = make([]*Cell, len(edges))
	for i, e := range edges {
		c.Edges[i] = Retain(e)
	}
	c.Meta = make([]FieldEntry, len(meta))
	for i, f := range meta {
		c.Meta[i] = FieldEntry{Name: f.Name, Value: Retain(f.Value)}
	}
	c.Entry = Retain(entry)
	c.Exit = Retain(exit)
	return c
}

func ActorHandle(id int64) *Cell {
	c := newCell(KindActor)
	c.HandleID = id
	return c
}

func ChannelHandle(id int64) *Cell {
	c := newCell(KindChannel)
	c.HandleID = id
	return c
}

// Box creates a mutable one-slot reference cell.
func Box(initial *Cell) *Cell {
	c := newCell(KindBox)
	c.boxed.Store(Retain(initial))
	return c
}

// BoxGet atomically reads the boxed value.
func (c *Cell) BoxGet() *Cell {
	return c.boxed.Load()
}

// BoxSet atomically swaps the boxed value, releasing the old one.
func (c *Cell) BoxSet(v *Cell) {
	old := c.boxed.Swap(Retain(v))
	Release(old)
}

// HashMapCell wraps a HashMap as a Cell.
func HashMapCell(m *HashMap) *Cell {
	c := newCell(KindHashMap)
	c.Map = m
	return c
}

// Weak creates a weak reference to target. Weak references do not hold the
// strong count (spec.md §3.1, §4.1) but do bump the weak count so the
// header survives for WeakDeref to observe "target gone" safely.
func Weak(target *Cell) *Cell {
	if target != nil {
		target.hdr.weak.Add(1)
	}
	c := newCell(KindWeak)
	c.target = target
	return c
}

// WeakDeref returns the target if it is still strongly alive, or Nil()
// otherwise, atomically verified against the strong count.
func WeakDeref(w *Cell) *Cell {
	if w.target == nil {
		return Nil()
	}
	if w.target.hdr.strong.Load() <= 0 {
		return Nil()
	}
	return w.target
}

// --- Type predicates ---

func (c *Cell) IsNil() bool     { return c.Kind == KindNil }
func (c *Cell) IsPair() bool    { return c.Kind == KindPair }
func (c *Cell) IsSymbol() bool  { return c.Kind == KindSymbol }
func (c *Cell) IsKeyword() bool { return c.Kind == KindKeyword }
func (c *Cell) IsError() bool   { return c.Kind == KindError }
func (c *Cell) IsLambda() bool  { return c.Kind == KindLambda }
func (c *Cell) IsBuiltin() bool { return c.Kind == KindBuiltin }
func (c *Cell) IsCallable() bool {
	return c.Kind == KindLambda || c.Kind == KindBuiltin
}

func (c *Cell) String() string {
	switch c.Kind {
	case KindNumber:
		return fmt.Sprintf("%g", c.Num)
	case KindInt:
		return fmt.Sprintf("%d", c.Int)
	case KindBool:
		if c.Bool {
			return "true"
		}
		return "false"
	case KindSymbol:
		return c.Str
	case KindKeyword:
		return ":" + c.Str
	case KindString:
		return fmt.Sprintf("%q", c.Str)
	case KindNil:
		return "nil"
	case KindPair:
		return fmt.Sprintf("(%s . %s)", c.Head, c.Tail)
	case KindLambda:
		return fmt.Sprintf("#<lambda/%d>", c.Arity)
	case KindBuiltin:
		return "#<builtin>"
	case KindError:
		return fmt.Sprintf("#<error %s>", c.ErrKind)
	case KindActor:
		return fmt.Sprintf("#<actor %d>", c.HandleID)
	case KindChannel:
		return fmt.Sprintf("#<channel %d>", c.HandleID)
	default:
		return "#<cell>"
	}
}
