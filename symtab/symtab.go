// Package symtab lists the symbols exported by a compiled unit, without loading it.
//
// ELF shared objects and Mach-O bundles are supported. The static and the dynamic symbol tables are merged, and
// undefined symbols are dropped: only what the unit itself defines is listed.
package symtab

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
)

var (
	// ErrUnknownFormat - The artifact is neither an ELF nor a Mach-O file
	ErrUnknownFormat = errors.New("unknown object file format")
	// ErrNoSymbols - The artifact defines no symbol
	ErrNoSymbols = errors.New("no symbols found")
)

// Format - Object file format of an artifact
type Format uint8

const (
	// FormatELF - Linux and BSD shared objects
	FormatELF Format = iota + 1
	// FormatMachO - macOS bundles and dylibs
	FormatMachO
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatMachO:
		return "macho"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// Kind - What a symbol points to
type Kind uint8

const (
	// KindOther - Sections, files, TLS and everything else
	KindOther Kind = iota
	// KindFunc - Executable code
	KindFunc
	// KindData - Variables and constants
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindData:
		return "data"
	default:
		return "other"
	}
}

// Symbol - Symbol defined by an artifact
type Symbol struct {
	// Name - Raw linker name
	Name string
	Kind Kind
	// Global - The symbol is visible outside of its object file
	Global bool
	// Dynamic - The symbol comes from the dynamic symbol table
	Dynamic bool
	Format  Format
	Value   uint64
}

// Demangle - Splits the linker name of the symbol into its Go package and identifier
func (s Symbol) Demangle() Name {
	name := s.Name
	if s.Format == FormatMachO && len(name) > 1 && name[0] == '_' {
		name = name[1:]
	}
	return Demangle(name)
}

// Open - Reads an artifact and lists its symbols
func Open(path string) ([]Symbol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read %s: %w", path, err)
	}
	syms, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("couldn't list symbols of %s: %w", path, err)
	}
	return syms, nil
}

// Parse - Lists the symbols of an in-memory artifact, sorted by name. A name listed by both the static and the
// dynamic symbol tables is only returned once.
func Parse(data []byte) ([]Symbol, error) {
	format, err := detect(data)
	if err != nil {
		return nil, err
	}

	var syms []Symbol
	switch format {
	case FormatELF:
		syms, err = elfSymbols(bytes.NewReader(data))
	case FormatMachO:
		syms, err = machoSymbols(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	if len(syms) == 0 {
		return nil, ErrNoSymbols
	}
	return dedupe(syms), nil
}

// detect - Returns the format of data from its magic number
func detect(data []byte) (Format, error) {
	if len(data) < 4 {
		return 0, ErrUnknownFormat
	}
	if bytes.HasPrefix(data, []byte("\x7fELF")) {
		return FormatELF, nil
	}
	switch binary.BigEndian.Uint32(data[:4]) {
	case 0xfeedface, 0xfeedfacf, 0xcefaedfe, 0xcffaedfe:
		return FormatMachO, nil
	}
	return 0, ErrUnknownFormat
}

// dedupe - Sorts syms by name and drops duplicated names, preferring the static table entry
func dedupe(syms []Symbol) []Symbol {
	sort.SliceStable(syms, func(i, j int) bool {
		if syms[i].Name != syms[j].Name {
			return syms[i].Name < syms[j].Name
		}
		return !syms[i].Dynamic && syms[j].Dynamic
	})
	out := syms[:0]
	for i, sym := range syms {
		if i > 0 && sym.Name == syms[i-1].Name {
			continue
		}
		out = append(out, sym)
	}
	return out
}
