package value

// Equal implements spec.md §4.1's structural equality: deep on pairs,
// structs and graphs; reference equality on opaque variants (lambdas,
// builtins, actor/channel handles, boxes, weak references).
func Equal(a, b *Cell) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNumber:
		return a.Num == b.Num
	case KindInt:
		return a.Int == b.Int
	case KindBool:
		return a.Bool == b.Bool
	case KindSymbol, KindKeyword, KindString:
		return a.Str == b.Str
	case KindNil:
		return true
	case KindPair:
		return Equal(a.Head, b.Head) && Equal(a.Tail, b.Tail)
	case KindError:
		return a.ErrKind == b.ErrKind && Equal(a.ErrData, b.ErrData)
	case KindStruct:
		if a.TypeTag != b.TypeTag || a.Variant != b.Variant || a.GKind != b.GKind {
			return false
		}
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Name != b.Fields[i].Name {
				return false
			}
			if !Equal(a.Fields[i].Value, b.Fields[i].Value) {
				return false
			}
		}
		return true
	case KindGraph:
		if a.TypeTag != b.TypeTag {
			return false
		}
		if len(a.Nodes) != len(b.Nodes) || len(a.Edges) != len(b.Edges) {
			return false
		}
		for i := range a.Nodes {
			if !Equal(a.Nodes[i], b.Nodes[i]) {
				return false
			}
		}
		for i := range a.Edges {
			if !Equal(a.Edges[i], b.Edges[i]) {
				return false
			}
		}
		return Equal(a.Entry, b.Entry) && Equal(a.Exit, b.Exit)
	case KindActor, KindChannel:
		return a.HandleID == b.HandleID
	case KindLambda, KindBuiltin, KindBox, KindWeak:
		return a == b
	case KindHashMap:
		return a.Map == b.Map
	default:
		return false
	}
}
