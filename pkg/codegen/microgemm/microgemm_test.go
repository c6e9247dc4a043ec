// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package microgemm

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPick(t *testing.T) {
	kernel, err := Pick(dtypes.Float32, ISAAVX512)
	require.NoError(t, err)
	assert.Equal(t, "fp32_avx512", kernel.Name)
	assert.Equal(t, LayoutNormal, kernel.Layout)
	assert.Equal(t, 1, kernel.VNNISize())

	// No AMX kernel for fp32: falls back to the AVX512 one.
	kernel, err = Pick(dtypes.Float32, ISAAMX)
	require.NoError(t, err)
	assert.Equal(t, "fp32_avx512", kernel.Name)

	// fp64 only has a generic kernel.
	kernel, err = Pick(dtypes.Float64, ISAAVX512)
	require.NoError(t, err)
	assert.Equal(t, "fp64_generic", kernel.Name)

	kernel, err = Pick(dtypes.BFloat16, ISAAMX)
	require.NoError(t, err)
	assert.Equal(t, LayoutVNNI2, kernel.Layout)
	assert.Equal(t, 2, kernel.VNNISize())
	assert.Equal(t, dtypes.Float32, kernel.CDType)

	kernel, err = Pick(dtypes.BFloat16, ISAAVX512)
	require.NoError(t, err)
	assert.Equal(t, LayoutNormal, kernel.Layout)

	kernel, err = Pick(dtypes.Int8, ISAAMX)
	require.NoError(t, err)
	assert.Equal(t, LayoutVNNI4, kernel.Layout)
	assert.Equal(t, dtypes.Int32, kernel.ComputeDType)

	_, err = Pick(dtypes.Complex64, ISAAVX512)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no micro-kernel available")

	_, err = Pick(dtypes.Float32, ISA(100))
	require.Error(t, err)
}

// Every kernel in the table must keep its invariants: BlockK a multiple of the
// VNNI size, cache panels multiples of the register blocking.
func TestKernelTableInvariants(t *testing.T) {
	for key, kernel := range kernels {
		assert.Equal(t, key.dtype, kernel.ADType, "kernel %s", kernel.Name)
		assert.Equal(t, key.isa, kernel.ISA, "kernel %s", kernel.Name)
		assert.Zero(t, kernel.Blocking.BlockK%kernel.VNNISize(), "kernel %s: BlockK not a multiple of VNNI size", kernel.Name)
		assert.Zero(t, kernel.Cache.Mc%kernel.Blocking.BlockM, "kernel %s: Mc not a multiple of BlockM", kernel.Name)
		assert.Zero(t, kernel.Cache.Nc%kernel.Blocking.BlockN, "kernel %s: Nc not a multiple of BlockN", kernel.Name)
		assert.True(t, kernel.Layout.IsALayoutType(), "kernel %s", kernel.Name)
	}
}

func TestDefineKernel(t *testing.T) {
	kernel, err := Pick(dtypes.BFloat16, ISAAMX)
	require.NoError(t, err)
	def, err := kernel.DefineKernel("kernel_micro_gemm")
	require.NoError(t, err)
	assert.Contains(t, def, "template <bool accum>")
	assert.Contains(t, def, "inline void kernel_micro_gemm(")
	assert.Contains(t, def, "const __bf16* __restrict__ A")
	assert.Contains(t, def, "const __bf16* __restrict__ B")
	assert.Contains(t, def, "float* __restrict__ C")
	// VNNI2 indexing of the packed B tile.
	assert.Contains(t, def, "B[(k / 2) * ldb * 2 + n * 2 + k % 2]")

	kernel, err = Pick(dtypes.Float32, ISAGeneric)
	require.NoError(t, err)
	def, err = kernel.DefineKernel("kernel_micro_gemm")
	require.NoError(t, err)
	assert.Contains(t, def, "B[k * ldb + n]")
	assert.NotContains(t, def, "k % 2")
}

func TestEnums(t *testing.T) {
	assert.Equal(t, "VNNI2", LayoutVNNI2.String())
	assert.Equal(t, "AVX512", ISAAVX512.String())

	isa, err := ISAString("avx512")
	require.NoError(t, err)
	assert.Equal(t, ISAAVX512, isa)
	isa, err = ISAString("AMX")
	require.NoError(t, err)
	assert.Equal(t, ISAAMX, isa)
	_, err = ISAString("sse9")
	require.Error(t, err)

	layout, err := LayoutTypeString("vnni4")
	require.NoError(t, err)
	assert.Equal(t, LayoutVNNI4, layout)

	assert.True(t, HostISA().IsAISA())
}

func TestKernelString(t *testing.T) {
	kernel, err := Pick(dtypes.Int8, ISAAMX)
	require.NoError(t, err)
	assert.Equal(t, "s8_amx (isa=AMX, layout=VNNI4, blocking=32x32x64)", kernel.String())
}
