// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package microgemm selects and defines the micro-kernels at the core of the
// generated GEMM code.
//
// A micro-kernel computes one register-blocked tile C[0:M, 0:N] (+)= A @ B and is
// emitted as a small templated C++ function at the top of every generated kernel
// file. The descriptor (Kernel) also carries the information the outer loops need:
// the register blocking, the cache-level panel sizes, and the memory layout the B
// operand must be packed into (see LayoutType).
//
// Selection is by (dtype, ISA) with fallback to narrower ISAs, see Pick.
package microgemm

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/kernelgen/pkg/codegen/cpputil"
	"github.com/gomlx/kernelgen/pkg/codegen/render"
	"github.com/pkg/errors"
)

// Blocking is the register-level tile computed by one micro-kernel call.
type Blocking struct {
	// BlockM (or Mr) is the number of A rows accumulated in registers.
	BlockM int
	// BlockN (or Nr) is the number of B columns accumulated in registers.
	BlockN int
	// BlockK is the K step of the inner loop, always a multiple of the
	// layout's VNNI size.
	BlockK int
}

// CacheBlocking holds the panel sizes the outer GEMM loops advance by, chosen so
// the panels fit the cache hierarchy.
type CacheBlocking struct {
	// Mc: L2 block height, a multiple of Blocking.BlockM.
	Mc int
	// Nc: L3 block width, a multiple of Blocking.BlockN.
	Nc int
	// Kc: L1 block depth.
	Kc int
}

// Kernel describes one micro-gemm implementation. The table of available kernels
// is consulted with Pick; the returned descriptors are shared, treat them as
// read-only.
type Kernel struct {
	// Name identifies the kernel in logs and generated code comments.
	Name string

	// ISA the blocking was tuned for. Selection only: the emitted C++ is portable.
	ISA ISA

	// Layout the B operand must be packed into.
	Layout LayoutType

	// ADType and BDType are the element types of the inputs, CDType of the
	// accumulator the kernel writes to.
	ADType, BDType, CDType dtypes.DType

	// ComputeDType is the type the products are accumulated in.
	ComputeDType dtypes.DType

	Blocking Blocking
	Cache    CacheBlocking
}

// VNNISize is a shortcut for the kernel's layout VNNI size.
func (k *Kernel) VNNISize() int { return k.Layout.VNNISize() }

// String implements fmt.Stringer.
func (k *Kernel) String() string {
	return fmt.Sprintf("%s (isa=%s, layout=%s, blocking=%dx%dx%d)",
		k.Name, k.ISA, k.Layout, k.Blocking.BlockM, k.Blocking.BlockN, k.Blocking.BlockK)
}

// microGemmDefTemplate is the C++ definition of a micro-kernel. The accum template
// parameter selects between overwriting C (first K panel) and accumulating into it
// (subsequent K panels). For VNNI layouts B is read with the interleaved indexing
// the packed weights were prepared for.
const microGemmDefTemplate = `
template <bool accum>
inline void {{.kernel_name}}(
    const {{.a_t}}* __restrict__ A,
    const {{.b_t}}* __restrict__ B,
    {{.c_t}}* __restrict__ C,
    int64_t M,
    int64_t N,
    int64_t K,
    int64_t lda,
    int64_t ldb,
    int64_t ldc) {
  for (int64_t m = 0; m < M; ++m) {
    for (int64_t n = 0; n < N; ++n) {
      {{.compute_t}} result = accum ? ({{.compute_t}})C[m * ldc + n] : ({{.compute_t}})0;
      #pragma omp simd reduction(+ : result)
      for (int64_t k = 0; k < K; ++k) {
{{- if gt .vnni 1}}
        result += ({{.compute_t}})A[m * lda + k] *
            ({{.compute_t}})B[(k / {{.vnni}}) * ldb * {{.vnni}} + n * {{.vnni}} + k % {{.vnni}}];
{{- else}}
        result += ({{.compute_t}})A[m * lda + k] * ({{.compute_t}})B[k * ldb + n];
{{- end}}
      }
      C[m * ldc + n] = ({{.c_t}})result;
    }
  }
}
`

// DefineKernel renders the C++ definition of this micro-kernel under funcName.
//
// For LayoutNormal, B points at a row-major [K, ldb] tile. For VNNI layouts, B
// points at the same tile packed as [K/vnni, ldb, vnni].
func (k *Kernel) DefineKernel(funcName string) (string, error) {
	opts := render.Options{
		"kernel_name": funcName,
		"a_t":         cpputil.DTypeToCpp(k.ADType),
		"b_t":         cpputil.DTypeToCpp(k.BDType),
		"c_t":         cpputil.DTypeToCpp(k.CDType),
		"compute_t":   cpputil.DTypeToCpp(k.ComputeDType),
		"vnni":        k.VNNISize(),
	}
	return render.Expand("micro_gemm_def", microGemmDefTemplate, opts)
}

type kernelKey struct {
	dtype dtypes.DType
	isa   ISA
}

// kernels is the table of available micro-kernels keyed by input dtype and ISA.
//
// Register blockings follow the accumulation register budget of each ISA (4 ZMM
// rows by 2 ZMM columns on AVX512, 4x2 YMM on AVX2), the cache blockings assume
// standard modern L1/L2/L3 sizes. Half precision and int8 inputs accumulate in
// float/int32 and require VNNI-packed weights where the ISA can exploit them.
var kernels = map[kernelKey]*Kernel{
	{dtypes.Float32, ISAAVX512}: {
		Name: "fp32_avx512", ISA: ISAAVX512, Layout: LayoutNormal,
		ADType: dtypes.Float32, BDType: dtypes.Float32, CDType: dtypes.Float32, ComputeDType: dtypes.Float32,
		Blocking: Blocking{BlockM: 16, BlockN: 32, BlockK: 1},
		Cache:    CacheBlocking{Mc: 512, Nc: 4096, Kc: 512},
	},
	{dtypes.Float32, ISAAVX2}: {
		Name: "fp32_avx2", ISA: ISAAVX2, Layout: LayoutNormal,
		ADType: dtypes.Float32, BDType: dtypes.Float32, CDType: dtypes.Float32, ComputeDType: dtypes.Float32,
		Blocking: Blocking{BlockM: 4, BlockN: 16, BlockK: 1},
		Cache:    CacheBlocking{Mc: 128, Nc: 512, Kc: 128},
	},
	{dtypes.Float32, ISAGeneric}: {
		Name: "fp32_generic", ISA: ISAGeneric, Layout: LayoutNormal,
		ADType: dtypes.Float32, BDType: dtypes.Float32, CDType: dtypes.Float32, ComputeDType: dtypes.Float32,
		Blocking: Blocking{BlockM: 8, BlockN: 8, BlockK: 1},
		Cache:    CacheBlocking{Mc: 256, Nc: 2048, Kc: 256},
	},
	{dtypes.Float64, ISAGeneric}: {
		Name: "fp64_generic", ISA: ISAGeneric, Layout: LayoutNormal,
		ADType: dtypes.Float64, BDType: dtypes.Float64, CDType: dtypes.Float64, ComputeDType: dtypes.Float64,
		Blocking: Blocking{BlockM: 8, BlockN: 8, BlockK: 1},
		Cache:    CacheBlocking{Mc: 256, Nc: 1024, Kc: 256},
	},
	{dtypes.BFloat16, ISAAMX}: {
		Name: "bf16_amx", ISA: ISAAMX, Layout: LayoutVNNI2,
		ADType: dtypes.BFloat16, BDType: dtypes.BFloat16, CDType: dtypes.Float32, ComputeDType: dtypes.Float32,
		Blocking: Blocking{BlockM: 32, BlockN: 32, BlockK: 32},
		Cache:    CacheBlocking{Mc: 512, Nc: 4096, Kc: 512},
	},
	{dtypes.BFloat16, ISAAVX512}: {
		Name: "bf16_avx512", ISA: ISAAVX512, Layout: LayoutNormal,
		ADType: dtypes.BFloat16, BDType: dtypes.BFloat16, CDType: dtypes.Float32, ComputeDType: dtypes.Float32,
		Blocking: Blocking{BlockM: 16, BlockN: 32, BlockK: 1},
		Cache:    CacheBlocking{Mc: 512, Nc: 4096, Kc: 512},
	},
	{dtypes.BFloat16, ISAGeneric}: {
		Name: "bf16_generic", ISA: ISAGeneric, Layout: LayoutNormal,
		ADType: dtypes.BFloat16, BDType: dtypes.BFloat16, CDType: dtypes.Float32, ComputeDType: dtypes.Float32,
		Blocking: Blocking{BlockM: 8, BlockN: 8, BlockK: 1},
		Cache:    CacheBlocking{Mc: 256, Nc: 2048, Kc: 256},
	},
	{dtypes.Float16, ISAAMX}: {
		Name: "fp16_amx", ISA: ISAAMX, Layout: LayoutVNNI2,
		ADType: dtypes.Float16, BDType: dtypes.Float16, CDType: dtypes.Float32, ComputeDType: dtypes.Float32,
		Blocking: Blocking{BlockM: 32, BlockN: 32, BlockK: 32},
		Cache:    CacheBlocking{Mc: 512, Nc: 4096, Kc: 512},
	},
	{dtypes.Float16, ISAAVX512}: {
		Name: "fp16_avx512", ISA: ISAAVX512, Layout: LayoutNormal,
		ADType: dtypes.Float16, BDType: dtypes.Float16, CDType: dtypes.Float32, ComputeDType: dtypes.Float32,
		Blocking: Blocking{BlockM: 16, BlockN: 32, BlockK: 1},
		Cache:    CacheBlocking{Mc: 512, Nc: 4096, Kc: 512},
	},
	{dtypes.Float16, ISAGeneric}: {
		Name: "fp16_generic", ISA: ISAGeneric, Layout: LayoutNormal,
		ADType: dtypes.Float16, BDType: dtypes.Float16, CDType: dtypes.Float32, ComputeDType: dtypes.Float32,
		Blocking: Blocking{BlockM: 8, BlockN: 8, BlockK: 1},
		Cache:    CacheBlocking{Mc: 256, Nc: 2048, Kc: 256},
	},
	{dtypes.Int8, ISAAMX}: {
		Name: "s8_amx", ISA: ISAAMX, Layout: LayoutVNNI4,
		ADType: dtypes.Int8, BDType: dtypes.Int8, CDType: dtypes.Int32, ComputeDType: dtypes.Int32,
		Blocking: Blocking{BlockM: 32, BlockN: 32, BlockK: 64},
		Cache:    CacheBlocking{Mc: 512, Nc: 4096, Kc: 512},
	},
	{dtypes.Int8, ISAAVX512}: {
		Name: "s8_avx512", ISA: ISAAVX512, Layout: LayoutVNNI4,
		ADType: dtypes.Int8, BDType: dtypes.Int8, CDType: dtypes.Int32, ComputeDType: dtypes.Int32,
		Blocking: Blocking{BlockM: 16, BlockN: 32, BlockK: 4},
		Cache:    CacheBlocking{Mc: 512, Nc: 4096, Kc: 512},
	},
	{dtypes.Int8, ISAGeneric}: {
		Name: "s8_generic", ISA: ISAGeneric, Layout: LayoutNormal,
		ADType: dtypes.Int8, BDType: dtypes.Int8, CDType: dtypes.Int32, ComputeDType: dtypes.Int32,
		Blocking: Blocking{BlockM: 8, BlockN: 8, BlockK: 1},
		Cache:    CacheBlocking{Mc: 256, Nc: 2048, Kc: 256},
	},
}

// Pick returns the micro-kernel to use for inputs of the given dtype on the given
// ISA. When the exact ISA has no kernel for the dtype, it falls back to the next
// narrower one, down to ISAGeneric.
//
// The returned descriptor is shared, treat it as read-only.
func Pick(dtype dtypes.DType, isa ISA) (*Kernel, error) {
	if !isa.IsAISA() {
		return nil, errors.Errorf("unknown ISA %d", int(isa))
	}
	for tryISA := isa; tryISA >= ISAGeneric; tryISA-- {
		if kernel, found := kernels[kernelKey{dtype: dtype, isa: tryISA}]; found {
			return kernel, nil
		}
	}
	return nil, errors.Errorf("no micro-kernel available for dtype %s (isa=%s)", dtype, isa)
}
