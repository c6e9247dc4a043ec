// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cppgemm_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	. "github.com/gomlx/kernelgen/pkg/codegen/cppgemm"
	"github.com/gomlx/kernelgen/pkg/core/ir"
	"github.com/gomlx/kernelgen/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefKernelSharesArguments(t *testing.T) {
	x := ir.NewBuffer("x", shapes.Make(dtypes.Float32, 4, 8, 16))
	y := ir.NewBuffer("y", shapes.Make(dtypes.BFloat16, 4, 8, 8))
	kernel := NewTemplateKernel("k")

	// Register the batch-stripped views first, then the batched buffers: both
	// reference the same underlying buffers, so the argument table has 2 entries.
	def1 := kernel.DefKernel("inner", "<INNER>",
		[]Arg{{Param: "X", Node: ir.Select(x, 0, 0)}},
		[]Arg{{Param: "Y", Node: ir.Select(y, 0, 0)}})
	def2 := kernel.DefKernel("outer", "<OUTER>",
		[]Arg{{Param: "X", Node: x}},
		[]Arg{{Param: "Y", Node: y}})
	assert.Equal(t, "<INNER>", def1)
	assert.Equal(t, "<OUTER>", def2)
	require.Len(t, kernel.ArgDefs(), 2)

	// An argument added after the definitions still shows up in both signatures.
	bias := ir.NewBuffer("bias", shapes.Make(dtypes.Float32, 4, 8, 8))
	kernel.AddInput("bias", bias)

	rendered, err := kernel.Hooks().Finalize("<INNER>\n<OUTER>")
	require.NoError(t, err)
	assert.Contains(t, rendered,
		"void inner(const float* __restrict__ X, __bf16* __restrict__ Y, const float* __restrict__ bias)")
	assert.Contains(t, rendered,
		"void outer(const float* __restrict__ X, __bf16* __restrict__ Y, const float* __restrict__ bias)")
}

func TestArgDefs(t *testing.T) {
	x := ir.NewBuffer("x", shapes.Make(dtypes.Float32, 2, 3))
	y := ir.NewBuffer("y", shapes.Make(dtypes.Float32, 2, 3))
	kernel := NewTemplateKernel("k")
	kernel.DefKernel("f", "<DEF>", []Arg{{Param: "X", Node: x}}, []Arg{{Param: "Y", Node: y}})

	defs := kernel.ArgDefs()
	require.Len(t, defs, 2)
	assert.Equal(t, "X", defs[0].Param)
	assert.Equal(t, "x", defs[0].Buffer)
	assert.Equal(t, "Y", defs[1].Param)
	assert.Equal(t, "y", defs[1].Buffer)
}

func TestFakeBuffers(t *testing.T) {
	kernel := NewTemplateKernel("k")
	acc := ir.NewBuffer("acc", shapes.Make(dtypes.Float32, 8, 8))
	kernel.AddFakeBuffer(acc)

	dtype, err := kernel.DTypeOf("acc")
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, dtype)

	// Fake buffers cannot become arguments, and vice versa.
	require.Panics(t, func() { kernel.AddInput("acc", acc) })
	x := ir.NewBuffer("x", shapes.Make(dtypes.Float32, 8, 8))
	kernel.AddInput("X", x)
	require.Panics(t, func() { kernel.AddFakeBuffer(x) })

	dtype, err = kernel.DTypeOf("x")
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, dtype)
	_, err = kernel.DTypeOf("nowhere")
	require.ErrorContains(t, err, `buffer "nowhere" is not known to kernel "k"`)
}

func TestIndexExpr(t *testing.T) {
	kernel := NewTemplateKernel("k")
	node := ir.NewBuffer("y", shapes.Make(dtypes.Float32, 10, 8, 17))
	assert.Equal(t, "b_start * 136LL", kernel.IndexExpr(node, "b_start"))
	scalar := ir.NewBuffer("s", shapes.Make(dtypes.Float32))
	assert.Equal(t, "0", kernel.IndexExpr(scalar, "b_start"))
}

func TestDuplicatePlaceholder(t *testing.T) {
	x := ir.NewBuffer("x", shapes.Make(dtypes.Float32, 2, 3))
	kernel := NewTemplateKernel("k")
	kernel.DefKernel("f", "<DEF>", []Arg{{Param: "X", Node: x}}, nil)
	require.Panics(t, func() {
		kernel.DefKernel("g", "<DEF>", []Arg{{Param: "X", Node: x}}, nil)
	})
}
