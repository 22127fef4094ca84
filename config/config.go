// Package config describes the compilation target to the middle end.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Target holds the per-target knobs the axis analysis and code generation
// consume. All quantities are in elements, not bytes.
type Target struct {
	// AlignmentCap is the widest vector width the hardware or driver API
	// supports for a single memory instruction.
	AlignmentCap int64 `toml:"alignment_cap"`
	// PointerDivisibility is the divisibility assumed for pointer-typed
	// kernel arguments that carry no explicit ABI hint. Raising it above 1
	// is only sound if the launcher guarantees that alignment for every
	// pointer it passes.
	PointerDivisibility int64 `toml:"pointer_divisibility"`
}

// Default returns the conservative target: a 16-element cap and no
// assumptions about unannotated pointers.
func Default() Target {
	return Target{
		AlignmentCap:        16,
		PointerDivisibility: 1,
	}
}

// Load reads a target description from a TOML file. Keys not present in the
// file keep their [Default] values.
func Load(path string) (Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Target{}, err
	}
	return Parse(string(data))
}

// Parse parses a target description from TOML source.
func Parse(src string) (Target, error) {
	var loaded Target
	meta, err := toml.Decode(src, &loaded)
	if err != nil {
		return Target{}, err
	}
	if len(meta.Undecoded()) > 0 {
		return Target{}, fmt.Errorf("config: unknown key %q", meta.Undecoded()[0])
	}
	tgt := Default()
	if meta.IsDefined("alignment_cap") {
		tgt.AlignmentCap = loaded.AlignmentCap
	}
	if meta.IsDefined("pointer_divisibility") {
		tgt.PointerDivisibility = loaded.PointerDivisibility
	}
	if tgt.AlignmentCap < 1 {
		return Target{}, fmt.Errorf("config: alignment_cap must be at least 1, got %d", tgt.AlignmentCap)
	}
	if tgt.PointerDivisibility < 1 {
		return Target{}, fmt.Errorf("config: pointer_divisibility must be at least 1, got %d", tgt.PointerDivisibility)
	}
	return tgt, nil
}
