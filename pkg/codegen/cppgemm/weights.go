// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cppgemm

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/kernelgen/pkg/codegen/microgemm"
	"github.com/gomlx/kernelgen/pkg/core/ir"
	"github.com/gomlx/kernelgen/pkg/support/xslices"
)

// GetPaddedN returns n rounded up to a multiple of blockN.
func GetPaddedN(n, blockN int) int {
	return (n + blockN - 1) / blockN * blockN
}

// GetPaddedSize returns the target size of the weight re-layout and the padded
// number of columns.
//
// With blockWeight the target is the blocked layout [-1, paddedN/blockN, k, blockN]:
// one contiguous [k, blockN] panel per column block. Without it the weights keep
// their [-1, k, paddedN] layout. The leading -1 stands for whatever batch
// dimensions the weights carry.
func GetPaddedSize(n, blockN, k int, blockWeight bool) (newSize []int, paddedN int) {
	paddedN = GetPaddedN(n, blockN)
	if blockWeight {
		return []int{-1, paddedN / blockN, k, blockN}, paddedN
	}
	return []int{-1, k, paddedN}, paddedN
}

// BlockWeight pads the last axis of w by padding zero columns and reorders it into
// the blocked layout given by newSize, as returned by GetPaddedSize with
// blockWeight set.
//
// The intermediate reshape splits the padded column axis in place, so the blocked
// layout is reached with a single permute of the k and column-block axes.
func BlockWeight(w ir.Node, newSize []int, padding int) ir.Node {
	if len(newSize) != 4 {
		exceptions.Panicf("BlockWeight: blocked layout must have 4 axes, got %v", newSize)
	}
	permutedSize := slices.Clone(newSize)
	rank := len(permutedSize)
	permutedSize[rank-2], permutedSize[rank-3] = permutedSize[rank-3], permutedSize[rank-2]
	blocked := ir.PadLastAxis(w, padding)
	return ir.Permute(ir.Reshape(blocked, permutedSize...), 0, 2, 1, 3)
}

// PackVNNIWeight interleaves the k axis of blocked weights in groups of the
// micro-kernel's VNNI size, so consecutive elements of one column sit next to each
// other in memory. For micro-kernels with a normal B layout w is returned
// unchanged; otherwise the packed chain is realized into a new buffer.
//
// The newSize argument is the blocked layout of w, as returned by GetPaddedSize.
func PackVNNIWeight(w ir.Node, micro *microgemm.Kernel, newSize []int) ir.Node {
	if micro.Layout == microgemm.LayoutNormal {
		return w
	}
	if !micro.Layout.IsALayoutType() {
		exceptions.Panicf("PackVNNIWeight: unknown B layout %d of micro-kernel %s", int(micro.Layout), micro.Name)
	}
	k := xslices.At(newSize, -2)
	vnniSize := micro.VNNISize()
	if k%vnniSize != 0 {
		exceptions.Panicf("PackVNNIWeight: k=%d must be a multiple of the VNNI size %d of micro-kernel %s",
			k, vnniSize, micro.Name)
	}
	vnniViewSize := slices.Clone(newSize)
	xslices.SetAt(vnniViewSize, -2, k/vnniSize)
	vnniViewSize = slices.Insert(vnniViewSize, len(vnniViewSize)-1, vnniSize)
	packed := ir.Reshape(ir.Permute(ir.Reshape(w, vnniViewSize...), 0, 1, 2, 4, 3), newSize...)
	return ir.Realize(packed, w.Name()+"_vnni")
}
