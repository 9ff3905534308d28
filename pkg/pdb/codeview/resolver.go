package codeview

import (
	"fmt"
	"strings"

	"github.com/jtang613/pdbstruct/pkg/pdb/streams"
)

// maxResolveDepth bounds recursion through malformed self-referencing records.
const maxResolveDepth = 32

// TypeResolver renders type indices of a TPI stream as C-like names.
type TypeResolver struct {
	tpi *streams.TPIStream
}

// NewTypeResolver creates a new type resolver.
func NewTypeResolver(tpi *streams.TPIStream) *TypeResolver {
	return &TypeResolver{tpi: tpi}
}

// Record returns the TPI record for a type index, or nil.
func (r *TypeResolver) Record(typeIdx uint32) *streams.TypeRecord {
	if r.tpi == nil || typeIdx < streams.TypeIndexBegin {
		return nil
	}
	return r.tpi.GetType(typeIdx)
}

// ResolveType resolves a type index to a human-readable string.
func (r *TypeResolver) ResolveType(typeIdx uint32) string {
	return r.resolve(typeIdx, 0)
}

func (r *TypeResolver) resolve(typeIdx uint32, depth int) string {
	if typeIdx < streams.TypeIndexBegin {
		return streams.GetBuiltinTypeName(typeIdx)
	}
	rec := r.Record(typeIdx)
	if rec == nil || depth > maxResolveDepth {
		return fmt.Sprintf("type_0x%x", typeIdx)
	}
	depth++

	switch rec.Kind {
	case streams.LF_POINTER:
		p, err := ParsePointer(rec)
		if err != nil {
			return "ptr<?>"
		}
		suffix := "*"
		switch p.Mode() {
		case PtrModeLValueRef:
			suffix = "&"
		case PtrModeRValueRef:
			suffix = "&&"
		}
		s := r.resolve(p.Referent, depth) + suffix
		if p.IsConst() {
			s += " const"
		}
		return s
	case streams.LF_MODIFIER:
		m, err := ParseModifier(rec)
		if err != nil {
			return "mod<?>"
		}
		s := r.resolve(m.Type, depth)
		if m.IsVolatile() {
			s = "volatile " + s
		}
		if m.IsConst() {
			s = "const " + s
		}
		return s
	case streams.LF_ARRAY:
		a, err := ParseArray(rec)
		if err != nil {
			return "array<?>"
		}
		elem := r.resolve(a.ElemType, depth)
		if n, ok := r.arrayCount(a, depth); ok {
			return fmt.Sprintf("%s[%d]", elem, n)
		}
		return elem + "[]"
	case streams.LF_BITFIELD:
		b, err := ParseBitfield(rec)
		if err != nil {
			return "bitfield<?>"
		}
		return fmt.Sprintf("%s : %d", r.resolve(b.Type, depth), b.Length)
	case streams.LF_PROCEDURE, streams.LF_MFUNCTION:
		p, err := ParseProcedure(rec)
		if err != nil {
			return "func<?>"
		}
		ret := r.resolve(p.ReturnType, depth)
		args := r.resolve(p.ArgList, depth)
		if rec.Kind == streams.LF_MFUNCTION {
			return fmt.Sprintf("%s (%s::*)(%s)", ret, r.resolve(p.ClassType, depth), args)
		}
		return fmt.Sprintf("%s (*)(%s)", ret, args)
	case streams.LF_ARGLIST:
		args, err := ParseArgList(rec)
		if err != nil {
			return ""
		}
		if len(args) == 0 {
			return "void"
		}
		names := make([]string, len(args))
		for i, a := range args {
			names[i] = r.resolve(a, depth)
		}
		return strings.Join(names, ", ")
	}

	if IsAggregate(rec.Kind) {
		a, err := ParseAggregate(rec)
		if err != nil || a.Name == "" {
			return fmt.Sprintf("type_0x%x", typeIdx)
		}
		return a.Name
	}
	return fmt.Sprintf("type_0x%x", rec.Index)
}

// arrayCount derives the element count from the byte size and the element
// size.
func (r *TypeResolver) arrayCount(a Array, depth int) (uint64, bool) {
	elem, ok := r.size(a.ElemType, depth)
	if !ok || elem == 0 {
		return 0, false
	}
	return a.Size / elem, true
}

// TypeSize returns the size in bytes of a type index. Forward references
// are not followed; callers resolve them first.
func (r *TypeResolver) TypeSize(typeIdx uint32) (uint64, bool) {
	return r.size(typeIdx, 0)
}

func (r *TypeResolver) size(typeIdx uint32, depth int) (uint64, bool) {
	if typeIdx < streams.TypeIndexBegin {
		n, ok := streams.BuiltinTypeSize(typeIdx)
		return uint64(n), ok
	}
	rec := r.Record(typeIdx)
	if rec == nil || depth > maxResolveDepth {
		return 0, false
	}
	depth++

	switch rec.Kind {
	case streams.LF_POINTER:
		p, err := ParsePointer(rec)
		return uint64(p.Size()), err == nil
	case streams.LF_MODIFIER:
		m, err := ParseModifier(rec)
		if err != nil {
			return 0, false
		}
		return r.size(m.Type, depth)
	case streams.LF_BITFIELD:
		b, err := ParseBitfield(rec)
		if err != nil {
			return 0, false
		}
		return r.size(b.Type, depth)
	case streams.LF_ARRAY:
		a, err := ParseArray(rec)
		return a.Size, err == nil
	}
	if IsAggregate(rec.Kind) {
		a, err := ParseAggregate(rec)
		if err != nil {
			return 0, false
		}
		if a.IsEnum() {
			return r.size(a.Underlying, depth)
		}
		return a.Size, true
	}
	return 0, false
}

// Fields returns every entry of the field list at index, following LF_INDEX
// continuations.
func (r *TypeResolver) Fields(fieldList uint32) ([]Field, error) {
	var all []Field
	seen := make(map[uint32]bool)
	for idx := fieldList; idx != 0; {
		if seen[idx] {
			return all, fmt.Errorf("field list %#x continues into itself", idx)
		}
		seen[idx] = true

		rec := r.Record(idx)
		if rec == nil {
			return all, fmt.Errorf("field list %#x not found", idx)
		}
		if rec.Kind != streams.LF_FIELDLIST {
			return all, fmt.Errorf("type %#x is %s, not a field list", idx, streams.LeafKindName(rec.Kind))
		}
		fields, next, err := ParseFieldList(rec.Data)
		all = append(all, fields...)
		if err != nil {
			return all, err
		}
		idx = next
	}
	return all, nil
}
