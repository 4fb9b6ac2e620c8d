package symtab

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Name - Go view of a linker symbol name
type Name struct {
	// Package - Import path of the package defining the symbol. Empty for linker generated symbols.
	Package string
	// Symbol - Identifier inside the package, with its receiver for methods and its closure suffix for closures
	Symbol string
}

func (n Name) String() string {
	if n.Package == "" {
		return n.Symbol
	}
	return n.Package + "." + n.Symbol
}

// Exported - Returns the identifier of a package-level exported function or variable. Methods, closures,
// generic instantiations and linker generated symbols are not exported.
func (n Name) Exported() (string, bool) {
	if n.Package == "" || n.Symbol == "" {
		return "", false
	}
	first, _ := utf8.DecodeRuneInString(n.Symbol)
	if !unicode.IsUpper(first) {
		return "", false
	}
	for _, r := range n.Symbol {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return "", false
		}
	}
	return n.Symbol, true
}

// linkerPrefixes - Prefixes of linker generated names. "local." marks the alias the linker adds for every
// function of a plugin's main package.
var linkerPrefixes = []string{"go:", "type:", "local.", "_cgo_", "x_cgo_"}

// Demangle - Splits a Go linker symbol name into its package and identifier. The package is the part before the
// first dot following the last slash, ignoring anything inside the type arguments of a generic instantiation.
// Dots escaped by the linker in the last element of the import path are restored.
func Demangle(raw string) Name {
	for _, prefix := range linkerPrefixes {
		if strings.HasPrefix(raw, prefix) {
			return Name{Symbol: raw}
		}
	}

	head := raw
	if i := strings.IndexByte(head, '['); i >= 0 {
		head = head[:i]
	}
	slash := strings.LastIndexByte(head, '/')
	dot := strings.IndexByte(head[slash+1:], '.')
	if dot < 0 {
		return Name{Symbol: raw}
	}
	dot += slash + 1

	pkg := raw[:dot]
	if strings.IndexByte(pkg, '%') >= 0 {
		if unescaped, err := url.PathUnescape(pkg); err == nil {
			pkg = unescaped
		}
	}
	return Name{Package: pkg, Symbol: raw[dot+1:]}
}
