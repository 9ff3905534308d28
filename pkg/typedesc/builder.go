package typedesc

import (
	"log/slog"

	"fortio.org/safecast"
)

// MaxChildren is the default number of child indices fetched for one type.
// Providers list children into a fixed buffer; types with more children are
// built from the first MaxChildren and marked truncated.
const MaxChildren = 400

// Builder assembles StructDescriptors from a Provider. It keeps no state
// between calls and does no locking of its own; concurrent use is safe only
// if the Provider is.
type Builder struct {
	Provider Provider
	// Capacity bounds the child listing; zero means MaxChildren.
	Capacity int
	Logger   *slog.Logger
}

// NewBuilder returns a Builder with the default capacity.
func NewBuilder(p Provider, logger *slog.Logger) *Builder {
	return &Builder{Provider: p, Capacity: MaxChildren, Logger: logger}
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

func (b *Builder) capacity() int {
	if b.Capacity <= 0 {
		return MaxChildren
	}
	return b.Capacity
}

// BuildDescriptor walks the children of the type at index in the module
// loaded at base. It returns nil when the provider cannot report a children
// count for the type. Children that resolve neither as storage members nor
// as constants are left out.
func (b *Builder) BuildDescriptor(base uint64, index uint32) *StructDescriptor {
	log := b.logger().With("base", base, "index", index)

	count, err := b.Provider.ChildrenCount(base, index)
	if err != nil {
		log.Debug("no children count", "err", err)
		return nil
	}

	desc := NewStructDescriptor(count)
	desc.reported = count
	if length, err := b.Provider.Length(base, index); err == nil {
		if n, err := safecast.Conv[int](length); err == nil {
			desc.length = n
		} else {
			log.Warn("length out of range", "length", length, "err", err)
		}
	}

	want := count
	if limit := b.capacity(); want > limit {
		log.Warn("children exceed listing capacity", "children", count, "capacity", limit)
		desc.truncated = true
		want = limit
	}
	if want <= 0 {
		return desc
	}

	children, err := b.Provider.FindChildren(base, index, want)
	if err != nil {
		log.Debug("failed to list children", "err", err)
		return desc
	}
	if len(children) > want {
		children = children[:want]
	}

	for _, child := range children {
		m := b.resolveChild(log, base, child)
		if m == nil {
			continue
		}
		if desc.AddMember(m) {
			log.Debug("member name shadows an earlier member", "name", m.Name(), "child", child)
		}
	}
	return desc
}

// resolveChild tries the storage-member path first and the constant path
// second.
func (b *Builder) resolveChild(log *slog.Logger, base uint64, child uint32) *StructMember {
	p := b.Provider
	sym, err := p.SymbolByIndex(base, child)
	if err != nil {
		log.Debug("dropping unresolvable child", "child", child, "err", err)
		return nil
	}

	offset, offErr := p.Offset(base, child)
	if offErr == nil {
		tag, tagErr := p.Tag(base, child)
		if tagErr == nil {
			off, err := safecast.Conv[int](offset)
			if err != nil {
				log.Debug("dropping child with offset out of range", "child", child, "offset", offset)
				return nil
			}
			sym.Tag = tag
			sym.TypeIndex = child
			return NewMember(sym, off)
		}
		offErr = tagErr
	}

	value, valErr := p.ConstantValue(base, child)
	if valErr != nil {
		log.Debug("dropping child", "child", child, "name", sym.Name, "member_err", offErr, "value_err", valErr)
		return nil
	}
	sym.Tag = TagEnum
	sym.TypeIndex = child
	sym.Value = int64(value.Bits())
	return NewConstant(sym, value.Decode(sym.Size))
}
