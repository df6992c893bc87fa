package cluster

// Operator is a combined push+pop request. Push and pop are independent;
// when both are set the pop extracts the minimum of the resident entries and
// the pushed one.
type Operator struct {
	// Push is the entry to insert. A non-existing entry means no push.
	Push Entry

	// Pop requests extraction of the minimum.
	Pop bool
}

// Nop returns the operator that does nothing.
func Nop() Operator {
	return Operator{Push: Empty()}
}

// PushOp returns a pure push of e.
func PushOp(e Entry) Operator {
	return Operator{Push: e}
}

// PopOp returns a pure pop.
func PopOp() Operator {
	return Operator{Push: Empty(), Pop: true}
}

// ReplaceOp returns a push of e combined with a pop.
func ReplaceOp(e Entry) Operator {
	return Operator{Push: e, Pop: true}
}

// IsNop reports whether the operator has no effect.
func (o Operator) IsNop() bool {
	return !o.Pop && !o.Push.Exists
}

// IsPurePush reports whether the operator only inserts.
func (o Operator) IsPurePush() bool {
	return !o.Pop && o.Push.Exists
}

// IsPurePop reports whether the operator only extracts.
func (o Operator) IsPurePop() bool {
	return o.Pop && !o.Push.Exists
}
