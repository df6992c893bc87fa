package cluster

import "fmt"

// Addr is the storage address of a sibling pair within one level.
type Addr uint32

// NullBit is the reserved high bit that marks a null address.
const NullBit Addr = 1 << 31

// NullAddr is the canonical null address.
const NullAddr = NullBit

// MaxAddrBits is the widest address a level may use.
const MaxAddrBits = 31

// IsNull reports whether the null marker is set.
func (a Addr) IsNull() bool {
	return a&NullBit != 0
}

// Index returns the address with the null marker stripped.
func (a Addr) Index() uint32 {
	return uint32(a &^ NullBit)
}

// SameSlot reports whether a and b name the same valid storage slot.
func (a Addr) SameSlot(b Addr) bool {
	return !a.IsNull() && !b.IsNull() && a.Index() == b.Index()
}

// String renders the address.
func (a Addr) String() string {
	if a.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%#x", a.Index())
}

// Side selects one cluster of a sibling pair, or one child of a cluster.
type Side uint8

const (
	// Left is side 0.
	Left Side = iota
	// Right is side 1.
	Right
)

// Other returns the opposite side.
func (s Side) Other() Side {
	return s ^ 1
}

// String renders the side.
func (s Side) String() string {
	if s == Left {
		return "L"
	}
	return "R"
}
