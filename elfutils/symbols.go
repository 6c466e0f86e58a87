// Package elfutils inspects ELF binaries produced by module builds. Module
// endpoint IDs are embedded by the toolchain as absolute symbols, so
// resolution is a symbol table scan.
package elfutils

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"

	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// DefinedSymbolValue returns the value of a symbol defined in the binary.
// Entries with an undefined section index are imports and do not count: a
// symbol that only appears undefined is reported as missing.
func DefinedSymbolValue(path string, symbol string) (uint64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", interfaces.ErrArtifactMissing, path, err)
	}

	f, err := elf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("could not open ELF file %s: %w", path, err)
	}
	defer f.Close()

	symtab, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return 0, fmt.Errorf("could not read symbol table of %s: %w", path, err)
	}
	dynsym, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return 0, fmt.Errorf("could not read dynamic symbol table of %s: %w", path, err)
	}

	for _, sym := range symtab {
		if sym.Name == symbol && sym.Section != elf.SHN_UNDEF {
			return sym.Value, nil
		}
	}
	for _, sym := range dynsym {
		if sym.Name == symbol && sym.Section != elf.SHN_UNDEF {
			return sym.Value, nil
		}
	}

	return 0, &interfaces.SymbolNotFoundError{Binary: path, Symbol: symbol}
}
