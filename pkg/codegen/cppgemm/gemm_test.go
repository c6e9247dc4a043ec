// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cppgemm_test

import (
	"strings"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	. "github.com/gomlx/kernelgen/pkg/codegen/cppgemm"
	"github.com/gomlx/kernelgen/pkg/codegen/microgemm"
	"github.com/gomlx/kernelgen/pkg/core/ir"
	"github.com/gomlx/kernelgen/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGemmRender(t *testing.T) {
	x := ir.NewBuffer("x", shapes.Make(dtypes.Float32, 5, 3))
	w := ir.NewBuffer("w", shapes.Make(dtypes.Float32, 3, 17))
	y := ir.NewBuffer("y", shapes.Make(dtypes.Float32, 5, 17))
	micro, err := microgemm.Pick(dtypes.Float32, microgemm.ISAGeneric)
	require.NoError(t, err)

	cpp, err := NewGemmTemplate("my_gemm", x, w, y, micro, 8).Render()
	require.NoError(t, err)

	assert.NotContains(t, cpp, "<DEF_KERNEL>")
	assert.Contains(t, cpp,
		"extern \"C\"\nvoid my_gemm(const float* __restrict__ X, const float* __restrict__ W, float* __restrict__ Y)")
	assert.Less(t, strings.Index(cpp, "template <bool accum>"), strings.Index(cpp, "void my_gemm("))

	// The 2-D generator always re-lays the weights out into column-block panels,
	// padding 17 columns up to 24 for the 8-wide micro-kernel.
	assert.Contains(t, cpp, "constexpr int64_t N = 17;")
	assert.Contains(t, cpp, "constexpr int64_t n_range = 24;")
	assert.Contains(t, cpp, "const float* b_panel = W + (n / Nr) * K * ldb + kc * ldb;")
	assert.Contains(t, cpp, "const int64_t n_store = std::min(n_size, N - n);")
	assert.Contains(t, cpp, "#pragma omp parallel for num_threads(8) collapse(2)")
}

func TestGemmRenderEpilogueAndActivation(t *testing.T) {
	x := ir.NewBuffer("x", shapes.Make(dtypes.Float32, 5, 4))
	w := ir.NewBuffer("w", shapes.Make(dtypes.Float32, 4, 8))
	y := ir.NewBuffer("y", shapes.Make(dtypes.Float32, 5, 8))
	micro, err := microgemm.Pick(dtypes.Float32, microgemm.ISAGeneric)
	require.NoError(t, err)

	bias := ir.NewBuffer("bias", shapes.Make(dtypes.Float32, 5, 8))
	biased := ir.NewPointwise("y_biased", y.Shape(), "add", y, bias)
	cpp, err := NewGemmTemplate("my_gemm", x, w, y, micro, 1).
		WithEpilogue(biased).
		WithActivation(ActivationSilu).
		Render()
	require.NoError(t, err)

	assert.Contains(t, cpp,
		"void my_gemm(const float* __restrict__ X, const float* __restrict__ W, float* __restrict__ Y, const float* __restrict__ bias)")
	assert.Contains(t, cpp, "out_val += (float)bias[(m + mm) * 8 + (n + nn)];")
	assert.Contains(t, cpp, "= (float)(out_val / ((float)1 + std::exp(-out_val)));")
	assert.NotContains(t, cpp, "#pragma omp parallel")
}

func TestGemmPreconditions(t *testing.T) {
	x := ir.NewBuffer("x", shapes.Make(dtypes.Float32, 5, 3))
	w := ir.NewBuffer("w", shapes.Make(dtypes.Float32, 3, 17))
	y := ir.NewBuffer("y", shapes.Make(dtypes.Float32, 5, 17))
	micro, err := microgemm.Pick(dtypes.Float32, microgemm.ISAGeneric)
	require.NoError(t, err)

	badY := ir.NewBuffer("y2", shapes.Make(dtypes.Float32, 5, 16))
	require.Panics(t, func() { NewGemmTemplate("g", x, w, badY, micro, 1) })
	batched := ir.NewBuffer("x3", shapes.Make(dtypes.Float32, 2, 5, 3))
	require.Panics(t, func() { NewGemmTemplate("g", batched, w, y, micro, 1) })
	require.Panics(t, func() { NewGemmTemplate("g", x, w, y, micro, -1) })
}
