package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jtang613/pdbstruct/pkg/pdb"
	"github.com/jtang613/pdbstruct/pkg/typedesc"
)

// layout is the serialized form of a struct descriptor.
type layout struct {
	Name      string         `json:"name"`
	Index     uint32         `json:"index"`
	Length    int            `json:"length"`
	Children  int            `json:"children"`
	Truncated bool           `json:"truncated,omitempty"`
	Members   []layoutMember `json:"members"`
}

type layoutMember struct {
	Name   string `json:"name"`
	Tag    string `json:"tag"`
	Size   int    `json:"size"`
	Offset *int   `json:"offset,omitempty"`
	Value  *int64 `json:"value,omitempty"`
}

func newLayout(name string, index uint32, d *typedesc.StructDescriptor) layout {
	l := layout{
		Name:      name,
		Index:     index,
		Length:    d.Length(),
		Children:  d.ReportedChildren(),
		Truncated: d.Truncated(),
		Members:   make([]layoutMember, 0, d.Count()),
	}
	for _, m := range d.All() {
		lm := layoutMember{Name: m.Name(), Tag: m.Tag().String(), Size: m.Size()}
		if m.IsConstant() {
			v := m.Value()
			lm.Value = &v
		} else {
			off := m.Offset()
			lm.Offset = &off
		}
		l.Members = append(l.Members, lm)
	}
	return l
}

func (l layout) table() *table {
	t := newTable("OFFSET", "SIZE", "TAG", "NAME", "VALUE")
	t.title = fmt.Sprintf("%s (%d bytes, index %#x)", l.Name, l.Length, l.Index)
	if l.Truncated {
		t.title += fmt.Sprintf(" truncated: %d of %d children", len(l.Members), l.Children)
	}
	for _, m := range l.Members {
		off, val := "", ""
		if m.Offset != nil {
			off = hex(uint64(*m.Offset))
		}
		if m.Value != nil {
			val = fmt.Sprint(*m.Value)
		}
		t.add(off, m.Size, m.Tag, m.Name, val)
	}
	return t
}

func newStructCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "struct <pdb-file> [name|index]...",
		Short: "Show the member layout of structures, unions and enums",
		Long: `struct builds the member layout of each named type: data members and base
classes with their offsets, and enumerators with their values. Names are
matched case-insensitively unless case_sensitive is set in the config.`,
		Args: cobra.MinimumNArgs(1),
	}
	cmd.Flags().Bool("all", false, "lay out every named structure, union and enum")
	cmd.Flags().Int("workers", 0, "parallel builds for --all (default from config)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) < 2 {
			return fmt.Errorf("struct needs a type name or index, or --all")
		}
		workers := a.cfg.Workers
		if cmd.Flags().Changed("workers") {
			workers, _ = cmd.Flags().GetInt("workers")
		}
		if workers <= 0 {
			return fmt.Errorf("workers must be positive, got %d", workers)
		}

		return a.withModule(args[0], func(s *pdb.Session, m *pdb.Module) error {
			var targets []typedesc.SymbolInfo
			if all {
				types, err := s.EnumTypes(m.Base, "*")
				if err != nil {
					return err
				}
				for _, t := range types {
					if t.Tag != typedesc.TagTypedef {
						targets = append(targets, t)
					}
				}
			} else {
				for _, q := range args[1:] {
					t, err := resolveType(s, m.Base, q)
					if err != nil {
						return err
					}
					targets = append(targets, t)
				}
			}

			layouts, err := a.buildLayouts(s, m.Base, targets, workers)
			if err != nil {
				return err
			}
			return a.out.print(layouts, func() *table {
				var t *table
				for _, l := range layouts {
					if t == nil {
						t = l.table()
					} else {
						t.then(l.table())
					}
				}
				if t == nil {
					t = newTable()
				}
				return t
			})
		})
	}
	return cmd
}

// resolveType finds q as a type name, falling back to a numeric index.
func resolveType(s *pdb.Session, base uint64, q string) (typedesc.SymbolInfo, error) {
	sym, err := s.TypeFromName(base, q)
	if err == nil {
		return sym, nil
	}
	index, perr := parseIndex(q)
	if perr != nil {
		return typedesc.SymbolInfo{}, err
	}
	return s.SymbolByIndex(base, index)
}

// buildLayouts builds the descriptors of targets with at most workers builds
// in flight. Results keep the order of targets.
func (a *app) buildLayouts(s *pdb.Session, base uint64, targets []typedesc.SymbolInfo, workers int) ([]layout, error) {
	layouts := make([]layout, len(targets))
	var g errgroup.Group
	g.SetLimit(min(workers, max(len(targets), 1)))
	for i, t := range targets {
		g.Go(func() error {
			d := s.BuildDescriptor(base, t.Index)
			if d == nil {
				return fmt.Errorf("%s (index %#x) has no member layout", t.Name, t.Index)
			}
			layouts[i] = newLayout(t.Name, t.Index, d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(targets) > 1 {
		a.logger.Info("built layouts", "count", len(layouts), "workers", workers)
	}
	return layouts, nil
}
