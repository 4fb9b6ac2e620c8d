package symtab

import (
	"debug/macho"
	"fmt"
	"io"
)

const (
	machoStab = 0xe0 // N_STAB mask, debugging entries
	machoType = 0x0e // N_TYPE mask
	machoSect = 0x0e // N_SECT, defined in a section
	machoExt  = 0x01 // N_EXT, external symbol
)

// machoSymbols - Lists the symbols defined by a Mach-O file
func machoSymbols(r io.ReaderAt) ([]Symbol, error) {
	f, err := macho.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse macho file: %w", err)
	}
	defer f.Close()

	if f.Symtab == nil {
		return nil, nil
	}

	out := make([]Symbol, 0, len(f.Symtab.Syms))
	for _, sym := range f.Symtab.Syms {
		if sym.Type&machoStab != 0 || sym.Type&machoType != machoSect || sym.Name == "" {
			continue
		}
		out = append(out, Symbol{
			Name:    sym.Name,
			Kind:    machoKind(f, sym.Sect),
			Global:  sym.Type&machoExt != 0,
			Dynamic: sym.Type&machoExt != 0,
			Format:  FormatMachO,
			Value:   sym.Value,
		})
	}
	return out, nil
}

// machoKind - Returns the kind of a symbol from the section it lives in. Section numbers start at 1.
func machoKind(f *macho.File, sect uint8) Kind {
	if sect == 0 || int(sect) > len(f.Sections) {
		return KindOther
	}
	s := f.Sections[sect-1]
	switch {
	case s.Seg == "__TEXT" && s.Name == "__text":
		return KindFunc
	case s.Seg == "__DATA" || s.Seg == "__DATA_CONST":
		return KindData
	default:
		return KindOther
	}
}
