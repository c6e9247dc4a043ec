// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package microgemm

import (
	"golang.org/x/sys/cpu"
)

// ISA identifies the instruction set a micro-kernel is tuned for. Wider ISAs fall
// back to narrower ones when no kernel is registered for a dtype (see Pick).
type ISA int

const (
	// ISAGeneric works on any target, relying on the C++ compiler's auto-vectorization.
	ISAGeneric ISA = iota

	// ISAAVX2 assumes 16 SIMD registers of 256 bits.
	ISAAVX2

	// ISAAVX512 assumes 32 SIMD registers of 512 bits.
	ISAAVX512

	// ISAAMX assumes Intel AMX tile units on top of AVX512.
	ISAAMX
)

//go:generate go tool enumer -type=ISA -trimprefix=ISA -output=gen_isa_enumer.go isa.go

// HostISA returns the widest ISA supported by the CPU running the generator.
// It is the default target when none is configured.
func HostISA() ISA {
	switch {
	case cpu.X86.HasAMXTile && cpu.X86.HasAMXBF16:
		return ISAAMX
	case cpu.X86.HasAVX512F:
		return ISAAVX512
	case cpu.X86.HasAVX2:
		return ISAAVX2
	default:
		return ISAGeneric
	}
}
