package symtab

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
)

// elfSymbols - Lists the symbols defined by an ELF file, from both its symbol tables
func elfSymbols(r io.ReaderAt) ([]Symbol, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse elf file: %w", err)
	}
	defer f.Close()

	syms, errSyms := f.Symbols()
	dynSyms, errDynSyms := f.DynamicSymbols()
	if len(syms) == 0 && len(dynSyms) == 0 {
		if errSyms != nil && !errors.Is(errSyms, elf.ErrNoSymbols) {
			return nil, fmt.Errorf("failed to list symbols: %w", errSyms)
		}
		if errDynSyms != nil && !errors.Is(errDynSyms, elf.ErrNoSymbols) {
			return nil, fmt.Errorf("failed to list dynamic symbols: %w", errDynSyms)
		}
		return nil, nil
	}

	out := make([]Symbol, 0, len(syms)+len(dynSyms))
	out = appendELFSymbols(out, syms, false)
	out = appendELFSymbols(out, dynSyms, true)
	return out, nil
}

func appendELFSymbols(out []Symbol, syms []elf.Symbol, dynamic bool) []Symbol {
	for _, sym := range syms {
		if sym.Section == elf.SHN_UNDEF || sym.Name == "" {
			continue
		}
		bind := elf.ST_BIND(sym.Info)
		out = append(out, Symbol{
			Name:    sym.Name,
			Kind:    elfKind(elf.ST_TYPE(sym.Info)),
			Global:  bind == elf.STB_GLOBAL || bind == elf.STB_WEAK,
			Dynamic: dynamic,
			Format:  FormatELF,
			Value:   sym.Value,
		})
	}
	return out
}

func elfKind(typ elf.SymType) Kind {
	switch typ {
	case elf.STT_FUNC:
		return KindFunc
	case elf.STT_OBJECT:
		return KindData
	default:
		return KindOther
	}
}
