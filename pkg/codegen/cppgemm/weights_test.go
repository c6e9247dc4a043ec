// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cppgemm_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	. "github.com/gomlx/kernelgen/pkg/codegen/cppgemm"
	"github.com/gomlx/kernelgen/pkg/codegen/microgemm"
	"github.com/gomlx/kernelgen/pkg/core/ir"
	"github.com/gomlx/kernelgen/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPaddedSize(t *testing.T) {
	assert.Equal(t, 32, GetPaddedN(17, 16))
	assert.Equal(t, 16, GetPaddedN(16, 16))
	assert.Equal(t, 8, GetPaddedN(1, 8))

	newSize, paddedN := GetPaddedSize(17, 16, 64, true)
	assert.Equal(t, 32, paddedN)
	assert.Equal(t, []int{-1, 2, 64, 16}, newSize)

	newSize, paddedN = GetPaddedSize(32, 16, 64, true)
	assert.Equal(t, 32, paddedN)
	assert.Equal(t, []int{-1, 2, 64, 16}, newSize)

	newSize, paddedN = GetPaddedSize(17, 16, 64, false)
	assert.Equal(t, 32, paddedN)
	assert.Equal(t, []int{-1, 64, 32}, newSize)
}

func TestBlockWeight(t *testing.T) {
	w := ir.NewBuffer("w", shapes.Make(dtypes.Float32, 10, 64, 17))
	newSize, paddedN := GetPaddedSize(17, 16, 64, true)
	blocked := BlockWeight(w, newSize, paddedN-17)
	assert.NoError(t, blocked.Shape().CheckDims(10, 2, 64, 16))
	assert.Equal(t, "w", blocked.Name())

	require.Panics(t, func() { BlockWeight(w, []int{-1, 64, 32}, 15) })
}

func TestPackVNNIWeightNormalLayoutIsNoOp(t *testing.T) {
	micro, err := microgemm.Pick(dtypes.Float32, microgemm.ISAAVX512)
	require.NoError(t, err)
	w := ir.NewBuffer("w", shapes.Make(dtypes.Float32, 10, 64, 32))
	newSize, _ := GetPaddedSize(32, micro.Blocking.BlockN, 64, true)
	blocked := BlockWeight(w, newSize, 0)
	assert.Same(t, blocked, PackVNNIWeight(blocked, micro, newSize))
}

// TestPackVNNIWeightValues pushes a small int8 weight tensor through the full
// re-layout pipeline and checks every element lands where the micro-kernel's
// B indexing expects it: panel (n / blockN), then position
// (k/vnni)*blockN*vnni + (n%blockN)*vnni + k%vnni.
func TestPackVNNIWeightValues(t *testing.T) {
	micro, err := microgemm.Pick(dtypes.Int8, microgemm.ISAAVX512)
	require.NoError(t, err)
	require.Equal(t, microgemm.LayoutVNNI4, micro.Layout)

	const k, n, blockN = 4, 6, 4
	data := make([]int8, k*n)
	for i := range data {
		data[i] = int8(i)
	}
	w := ir.NewBuffer("w", shapes.Make(dtypes.Int8, 1, k, n))

	newSize, paddedN := GetPaddedSize(n, blockN, k, true)
	require.Equal(t, 8, paddedN)
	packed := PackVNNIWeight(BlockWeight(w, newSize, paddedN-n), micro, newSize)
	require.IsType(t, &ir.Buffer{}, packed)
	assert.Equal(t, "w_vnni", packed.Name())
	assert.NoError(t, packed.Shape().CheckDims(1, 2, k, blockN))

	host, err := ir.Materialize(packed, map[string]*ir.HostBuffer{
		"w": ir.HostBufferFromFlat(data, 1, k, n),
	})
	require.NoError(t, err)
	got := host.Data.([]int8)

	want := make([]int8, 2*k*blockN)
	for kk := 0; kk < k; kk++ {
		for nn := 0; nn < n; nn++ {
			panel := nn / blockN
			pos := (kk/4)*blockN*4 + (nn%blockN)*4 + kk%4
			want[panel*k*blockN+pos] = data[kk*n+nn]
		}
	}
	assert.Equal(t, want, got)
}

func TestPackVNNIWeightRejectsOddK(t *testing.T) {
	micro, err := microgemm.Pick(dtypes.Int8, microgemm.ISAAVX512)
	require.NoError(t, err)
	w := ir.NewBuffer("w", shapes.Make(dtypes.Int8, 1, 6, 8))
	newSize, _ := GetPaddedSize(8, 4, 6, true)
	blocked := BlockWeight(w, newSize, 0)
	require.Panics(t, func() { PackVNNIWeight(blocked, micro, newSize) })
}

func TestPackVNNIWeightRejectsUnknownLayout(t *testing.T) {
	bogus := &microgemm.Kernel{Name: "bogus", Layout: microgemm.LayoutType(9)}
	w := ir.NewBuffer("w", shapes.Make(dtypes.Int8, 1, 4, 8))
	newSize, _ := GetPaddedSize(8, 4, 4, true)
	blocked := BlockWeight(w, newSize, 0)
	require.Panics(t, func() { PackVNNIWeight(blocked, bogus, newSize) })
}
