package typedesc

import (
	"iter"

	"golang.org/x/text/cases"
)

// StructDescriptor is the ordered, name-indexed layout of an aggregate or
// enumeration type.
//
// Names are matched case-insensitively. When two members fold to the same
// name the later one wins in the name index while the ordered sequence keeps
// both.
type StructDescriptor struct {
	members   []*StructMember
	byName    map[string]*StructMember
	length    int
	reported  int
	truncated bool
}

// NewStructDescriptor returns an empty descriptor sized for capacity members.
func NewStructDescriptor(capacity int) *StructDescriptor {
	if capacity < 0 {
		capacity = 0
	}
	return &StructDescriptor{
		members:  make([]*StructMember, 0, capacity),
		byName:   make(map[string]*StructMember, capacity),
		reported: -1,
	}
}

// foldName normalizes a member name for the name index. Casers are not
// generally safe for concurrent use, so every call gets its own.
func foldName(name string) string {
	return cases.Fold().String(name)
}

// Length returns the total byte size of the aggregate.
func (d *StructDescriptor) Length() int { return d.length }

// SetLength records the aggregate byte size.
func (d *StructDescriptor) SetLength(n int) { d.length = n }

// Count returns the number of members in declaration order.
func (d *StructDescriptor) Count() int { return len(d.members) }

// At returns the member at position i. It panics if i is out of range.
func (d *StructDescriptor) At(i int) *StructMember { return d.members[i] }

// Members returns a copy of the ordered member list.
func (d *StructDescriptor) Members() []*StructMember {
	out := make([]*StructMember, len(d.members))
	copy(out, d.members)
	return out
}

// All iterates members in declaration order.
func (d *StructDescriptor) All() iter.Seq2[int, *StructMember] {
	return func(yield func(int, *StructMember) bool) {
		for i, m := range d.members {
			if !yield(i, m) {
				return
			}
		}
	}
}

// GetMember looks up a member by name, ignoring case.
func (d *StructDescriptor) GetMember(name string) (*StructMember, bool) {
	m, ok := d.byName[foldName(name)]
	return m, ok
}

// GetOffsetOf returns the byte offset of the named member, or -1 if the
// descriptor has no such member.
func (d *StructDescriptor) GetOffsetOf(name string) int {
	if m, ok := d.GetMember(name); ok {
		return m.offset
	}
	return -1
}

// AddMember appends m and indexes it by name. It reports whether an earlier
// member with the same folded name was shadowed in the index.
func (d *StructDescriptor) AddMember(m *StructMember) (shadowed bool) {
	m.parent = d
	key := foldName(m.symbol.Name)
	_, shadowed = d.byName[key]
	d.byName[key] = m
	d.members = append(d.members, m)
	return shadowed
}

// ReportedChildren returns the children count the provider reported for the
// type, or -1 for descriptors assembled by hand.
func (d *StructDescriptor) ReportedChildren() int { return d.reported }

// Truncated reports whether the provider reported more children than the
// builder's listing capacity could hold.
func (d *StructDescriptor) Truncated() bool { return d.truncated }
