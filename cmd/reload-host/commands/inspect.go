package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	manager "github.com/DataDog/reload-manager"
	"github.com/DataDog/reload-manager/internal/printer"
	"github.com/DataDog/reload-manager/symtab"
)

func newInspectCommand(newPrinter func(*cobra.Command) *printer.Printer) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "List the entry points an artifact exports, without loading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			symbols, err := symtab.Open(args[0])
			if err != nil {
				return p.Error("Cannot read artifact", err.Error(), []string{
					"Build the unit with go build -buildmode=plugin",
				})
			}
			if resolved := writeEntryPoints(p.Out(), symbols); resolved != len(manager.EntryPointNames) {
				return p.Error("Incomplete unit", fmt.Sprintf("%d of %d entry points resolve", resolved, len(manager.EntryPointNames)), []string{
					"Export every entry point exactly once, see package abi",
				})
			}
			return nil
		},
	}
}

// writeEntryPoints prints the candidates of each entry point and returns the number of entry points that resolve
func writeEntryPoints(w io.Writer, symbols []symtab.Symbol) int {
	var resolved int
	for _, logical := range manager.EntryPointNames {
		candidates := manager.Candidates(symbols, logical)
		switch len(candidates) {
		case 0:
			fmt.Fprintf(w, "%-18s missing\n", logical)
		case 1:
			resolved++
			fmt.Fprintf(w, "%-18s %s\n", logical, candidates[0])
		default:
			names := make([]string, 0, len(candidates))
			for _, candidate := range candidates {
				names = append(names, candidate.String())
			}
			fmt.Fprintf(w, "%-18s ambiguous: %s\n", logical, strings.Join(names, ", "))
		}
	}
	return resolved
}
