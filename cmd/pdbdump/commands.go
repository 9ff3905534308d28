package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jtang613/pdbstruct/pkg/pdb"
	"github.com/jtang613/pdbstruct/pkg/typedesc"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <pdb-file>",
		Short: "Show PDB file information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withModule(args[0], func(_ *pdb.Session, m *pdb.Module) error {
				info := m.PDB().Info()
				return a.out.print(info, func() *table {
					t := newTable("FIELD", "VALUE")
					t.add("path", m.Path)
					t.add("guid", info.GUID)
					t.add("age", info.Age)
					t.add("version", info.Version)
					t.add("signature", hex(uint64(info.Signature)))
					t.add("machine", info.Machine)
					t.add("streams", info.Streams)
					t.add("types", info.Types)
					t.add("symbol key", info.SymbolKey)
					return t
				})
			})
		},
	}
}

func newModulesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "modules <pdb-file>",
		Short: "List compilands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withModule(args[0], func(_ *pdb.Session, m *pdb.Module) error {
				mods := m.PDB().Modules()
				return a.out.print(mods, func() *table {
					t := newTable("NAME", "OBJECT", "STREAM", "SYMBOLS", "FILES")
					for _, mod := range mods {
						t.add(mod.Name, mod.ObjectFile, mod.SymbolStream, mod.SymbolSize, mod.SourceFiles)
					}
					return t
				})
			})
		},
	}
}

func newFunctionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "functions <pdb-file>",
		Short: "List procedures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withModule(args[0], func(_ *pdb.Session, m *pdb.Module) error {
				fns := m.PDB().Functions()
				return a.out.print(fns, func() *table {
					t := newTable("RVA", "LENGTH", "NAME", "SIGNATURE", "MODULE")
					for _, f := range fns {
						t.add(hex(uint64(f.RVA)), hex(uint64(f.Length)), displayName(f.Name, f.DemangledName), f.Signature, f.Module)
					}
					return t
				})
			})
		},
	}
}

func newVariablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "variables <pdb-file>",
		Short: "List global, static and thread-local data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withModule(args[0], func(_ *pdb.Session, m *pdb.Module) error {
				vars := m.PDB().Variables()
				return a.out.print(vars, func() *table {
					t := newTable("RVA", "SIZE", "NAME", "TYPE", "GLOBAL", "TLS", "MODULE")
					for _, v := range vars {
						t.add(hex(uint64(v.RVA)), v.Size, displayName(v.Name, v.DemangledName), v.TypeName, yesNo(v.IsGlobal), yesNo(v.ThreadLocal), v.Module)
					}
					return t
				})
			})
		},
	}
}

func newPublicsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publics <pdb-file>",
		Short: "List public symbols",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withModule(args[0], func(_ *pdb.Session, m *pdb.Module) error {
				pubs := m.PDB().PublicSymbols()
				return a.out.print(pubs, func() *table {
					t := newTable("RVA", "CODE", "NAME", "DECORATED")
					for _, p := range pubs {
						t.add(hex(uint64(p.RVA)), yesNo(p.IsFunction), displayName(p.Name, p.DemangledName), p.Name)
					}
					return t
				})
			})
		},
	}
}

func newTypesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "types <pdb-file>",
		Short: "List named structures, unions and enums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withModule(args[0], func(_ *pdb.Session, m *pdb.Module) error {
				types := m.PDB().Types()
				return a.out.print(types, func() *table {
					t := newTable("INDEX", "KIND", "SIZE", "NAME", "MEMBERS")
					for _, ti := range types {
						t.add(hex(uint64(ti.Index)), ti.Kind, ti.Size, ti.Name, len(ti.Members))
					}
					return t
				})
			})
		},
	}
}

func newSourcesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources <pdb-file>",
		Short: "List source files",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().String("match", "*", "wildcard mask on the source path")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		mask, _ := cmd.Flags().GetString("match")
		return a.withModule(args[0], func(s *pdb.Session, m *pdb.Module) error {
			files, err := s.EnumSourceFiles(m.Base, mask)
			if err != nil {
				return err
			}
			return a.out.print(files, func() *table {
				t := newTable("MODULE", "PATH")
				for _, f := range files {
					t.add(f.Module, f.Path)
				}
				return t
			})
		})
	}
	return cmd
}

func newTypeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "type <pdb-file> <index>",
		Short: "Show one type record by index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return a.withModule(args[0], func(_ *pdb.Session, m *pdb.Module) error {
				ti := m.PDB().ResolveType(index)
				if ti == nil {
					return fmt.Errorf("type %#x: %w", index, typedesc.ErrNotFound)
				}
				return a.out.print(ti, func() *table {
					t := newTable("FIELD", "VALUE")
					t.title = fmt.Sprintf("%s %s", ti.Kind, ti.Signature)
					t.add("index", hex(uint64(ti.Index)))
					t.add("name", ti.Name)
					t.add("size", ti.Size)
					if len(ti.Members) == 0 {
						return t
					}
					members := newTable("OFFSET", "NAME", "TYPE", "VALUE")
					for _, mem := range ti.Members {
						value := ""
						if mem.Value != nil {
							value = strconv.FormatInt(*mem.Value, 10)
						}
						members.add(hex(mem.Offset), mem.Name, mem.TypeName, value)
					}
					return t.then(members)
				})
			})
		},
	}
}

// lookupResult is one resolved lookup query.
type lookupResult struct {
	Query        string `json:"query"`
	Name         string `json:"name"`
	Address      uint64 `json:"address,omitempty"`
	Displacement uint64 `json:"displacement,omitempty"`
	Size         int    `json:"size,omitempty"`
	Tag          string `json:"tag"`
	Flags        string `json:"flags,omitempty"`
	Value        *int64 `json:"value,omitempty"`
}

func newLookupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <pdb-file> <name|mask|rva>...",
		Short: "Resolve symbols by name, wildcard mask or relative address",
		Long: `lookup resolves each query against the PDB's symbols. A number is taken as
an RVA and resolved to the nearest preceding symbol plus a displacement; a
query containing * or ? lists every matching symbol; anything else is an
exact name.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withModule(args[0], func(s *pdb.Session, m *pdb.Module) error {
				var results []lookupResult
				for _, q := range args[1:] {
					res, err := lookup(s, m, q)
					if err != nil {
						return err
					}
					results = append(results, res...)
				}
				return a.out.print(results, func() *table {
					t := newTable("QUERY", "RVA", "NAME", "TAG", "SIZE")
					for _, r := range results {
						name := r.Name
						if r.Displacement != 0 {
							name = fmt.Sprintf("%s+%#x", name, r.Displacement)
						}
						rva := ""
						if r.Address != 0 {
							rva = hex(r.Address - m.Base)
						}
						t.add(r.Query, rva, name, r.Tag, r.Size)
					}
					return t
				})
			})
		},
	}
}

func lookup(s *pdb.Session, m *pdb.Module, q string) ([]lookupResult, error) {
	if rva, err := strconv.ParseUint(q, 0, 32); err == nil {
		sym, disp, err := s.SymbolFromAddress(m.Base + rva)
		if err != nil {
			return nil, err
		}
		r := newLookupResult(q, sym)
		r.Displacement = disp
		return []lookupResult{r}, nil
	}
	if strings.ContainsAny(q, "*?") {
		syms, err := s.EnumSymbols(m.Base, q)
		if err != nil {
			return nil, err
		}
		if len(syms) == 0 {
			return nil, fmt.Errorf("no symbol matches %q: %w", q, typedesc.ErrNotFound)
		}
		out := make([]lookupResult, len(syms))
		for i, sym := range syms {
			out[i] = newLookupResult(q, sym)
		}
		return out, nil
	}
	sym, err := s.SymbolFromName(q)
	if err != nil {
		return nil, err
	}
	return []lookupResult{newLookupResult(q, sym)}, nil
}

func newLookupResult(q string, sym typedesc.SymbolInfo) lookupResult {
	r := lookupResult{
		Query:   q,
		Name:    sym.Name,
		Address: sym.Address,
		Size:    sym.Size,
		Tag:     sym.Tag.String(),
	}
	if sym.Flags != 0 {
		r.Flags = sym.Flags.String()
	}
	if sym.Flags.Has(typedesc.FlagValuePresent) {
		v := sym.Value
		r.Value = &v
	}
	return r
}

// parseIndex accepts a decimal or 0x-prefixed type index.
func parseIndex(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		return 0, fmt.Errorf("invalid type index %q: %w", s, err)
	}
	return uint32(v), nil
}

func displayName(name, demangled string) string {
	if demangled != "" {
		return demangled
	}
	return name
}
