package pdb

import (
	"strings"

	"github.com/ianlancetaylor/demangle"
)

const importPrefix = "__imp_"

// Undecorate returns the qualified name encoded in a linker symbol name.
// It understands MSVC C++ decorations (?name@scope@@...), Itanium
// decorations produced by clang and MinGW (_Z...), the C calling-convention
// forms _name, _name@N and @name@N, and the __imp_ import prefix. Names it
// cannot decode are returned unchanged.
func Undecorate(name string) string {
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, importPrefix):
		return Undecorate(name[len(importPrefix):])
	case strings.HasPrefix(name, "?"):
		if s, ok := undecorateMSVC(name); ok {
			return s
		}
		return name
	case strings.HasPrefix(name, "_Z"):
		return demangle.Filter(name, demangle.NoParams)
	case strings.HasPrefix(name, "@"):
		return stripArgBytes(name[1:])
	case strings.HasPrefix(name, "_"):
		return stripArgBytes(name[1:])
	}
	return name
}

// stripArgBytes removes the @N argument-size suffix of stdcall and fastcall
// names.
func stripArgBytes(name string) string {
	at := strings.LastIndexByte(name, '@')
	if at <= 0 || at == len(name)-1 {
		return name
	}
	for _, c := range name[at+1:] {
		if c < '0' || c > '9' {
			return name
		}
	}
	return name[:at]
}

// operatorNames maps the code following "?" in an MSVC special name.
var operatorNames = map[byte]string{
	'2': "operator new", '3': "operator delete", '4': "operator=",
	'5': "operator>>", '6': "operator<<", '7': "operator!",
	'8': "operator==", '9': "operator!=", 'A': "operator[]",
	'B': "operator cast", 'C': "operator->", 'D': "operator*",
	'E': "operator++", 'F': "operator--", 'G': "operator-",
	'H': "operator+", 'I': "operator&", 'J': "operator->*",
	'K': "operator/", 'L': "operator%", 'M': "operator<",
	'N': "operator<=", 'O': "operator>", 'P': "operator>=",
	'Q': "operator,", 'R': "operator()", 'S': "operator~",
	'T': "operator^", 'U': "operator|", 'V': "operator&&",
	'W': "operator||", 'X': "operator*=", 'Y': "operator+=",
	'Z': "operator-=",
}

// extOperatorNames maps the code following "?_".
var extOperatorNames = map[byte]string{
	'0': "operator/=", '1': "operator%=", '2': "operator>>=",
	'3': "operator<<=", '4': "operator&=", '5': "operator|=",
	'6': "operator^=", '7': "`vftable'", '8': "`vbtable'",
	'9': "`vcall'", 'E': "`dynamic initializer'",
	'F': "`dynamic atexit destructor'", 'U': "operator new[]",
	'V': "operator delete[]",
}

// msvcName decodes the qualified-name part of an MSVC decorated name. The
// type encoding that follows the name is not needed for name-only output
// and is ignored.
type msvcName struct {
	in    string
	pos   int
	back  []string // back-reference table, indices 0-9
	parts []string // innermost first
}

func undecorateMSVC(name string) (string, bool) {
	d := &msvcName{in: name, pos: 1}

	special := ""
	if d.peek() == '?' {
		d.pos++
		switch c := d.next(); c {
		case '0', '1':
			special = string(c)
		case '_':
			op, ok := extOperatorNames[d.next()]
			if !ok {
				return "", false
			}
			special = op
		case '$':
			// Template instantiations carry argument encodings this decoder
			// does not render.
			return "", false
		default:
			op, ok := operatorNames[c]
			if !ok {
				return "", false
			}
			special = op
		}
	}

	if !d.scopes() {
		return "", false
	}

	switch special {
	case "":
	case "0", "1":
		if len(d.parts) == 0 {
			return "", false
		}
		class := d.parts[0]
		if special == "1" {
			class = "~" + class
		}
		d.parts = append([]string{class}, d.parts...)
	default:
		d.parts = append([]string{special}, d.parts...)
	}
	if len(d.parts) == 0 {
		return "", false
	}

	out := make([]string, len(d.parts))
	for i, p := range d.parts {
		out[len(d.parts)-1-i] = p
	}
	return strings.Join(out, "::"), true
}

func (d *msvcName) peek() byte {
	if d.pos >= len(d.in) {
		return 0
	}
	return d.in[d.pos]
}

func (d *msvcName) next() byte {
	c := d.peek()
	if c != 0 {
		d.pos++
	}
	return c
}

// scopes reads name fragments up to the "@" that closes the qualified name.
func (d *msvcName) scopes() bool {
	for {
		c := d.peek()
		switch {
		case c == 0:
			return len(d.parts) > 0
		case c == '@':
			d.pos++
			return true
		case c >= '0' && c <= '9':
			d.pos++
			i := int(c - '0')
			if i >= len(d.back) {
				return false
			}
			d.parts = append(d.parts, d.back[i])
		case c == '?':
			// Nested templates and anonymous namespaces.
			if strings.HasPrefix(d.in[d.pos:], "?A0x") {
				end := strings.IndexByte(d.in[d.pos:], '@')
				if end < 0 {
					return false
				}
				d.pos += end + 1
				d.parts = append(d.parts, "`anonymous namespace'")
				continue
			}
			return false
		default:
			end := strings.IndexByte(d.in[d.pos:], '@')
			if end <= 0 {
				return false
			}
			frag := d.in[d.pos : d.pos+end]
			d.pos += end + 1
			if len(d.back) < 10 {
				d.back = append(d.back, frag)
			}
			d.parts = append(d.parts, frag)
		}
	}
}
