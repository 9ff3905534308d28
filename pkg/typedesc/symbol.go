// Package typedesc turns the per-type metadata exposed by a debug-information
// provider into queryable struct and enum layouts.
package typedesc

import "fmt"

// MaxSymbolName is the longest symbol name a provider reports; longer names
// are truncated.
const MaxSymbolName = 500

// SymbolInfo describes one resolved symbol or type node.
//
// TypeIndex is only meaningful together with the ModuleBase it was fetched
// from.
type SymbolInfo struct {
	TypeIndex  uint32      `json:"type_index"`
	Index      uint32      `json:"index"`
	Size       int         `json:"size"`
	ModuleBase uint64      `json:"module_base"`
	Flags      SymbolFlags `json:"flags"`
	Value      int64       `json:"value"`
	Address    uint64      `json:"address,omitempty"`
	Register   uint32      `json:"register,omitempty"`
	Scope      uint32      `json:"scope,omitempty"`
	Tag        SymbolTag   `json:"tag"`
	Name       string      `json:"name"`
}

func (s SymbolInfo) String() string {
	return fmt.Sprintf("%s tag=%s size=%d typeid=0x%x", s.Name, s.Tag, s.Size, s.TypeIndex)
}

// TruncateName cuts name to MaxSymbolName bytes.
func TruncateName(name string) string {
	if len(name) > MaxSymbolName {
		return name[:MaxSymbolName]
	}
	return name
}
