// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package microgemm

// LayoutType describes the memory layout a micro-kernel requires for the B
// (weights) operand inside each [K, block_n] tile.
//
//   - LayoutNormal: plain row-major [K, block_n].
//   - LayoutVNNI2: pairs of K rows interleaved per column, viewed as [K/2, block_n, 2].
//   - LayoutVNNI4: groups of 4 K rows interleaved per column, viewed as [K/4, block_n, 4].
//
// The VNNI layouts match what the dot-product instructions of recent x86 CPUs
// consume, so the weights are packed once and the inner loop reads them linearly.
type LayoutType int

const (
	LayoutNormal LayoutType = iota
	LayoutVNNI2
	LayoutVNNI4
)

//go:generate go tool enumer -type=LayoutType -trimprefix=Layout -output=gen_layouttype_enumer.go layout.go

// VNNISize returns how many K rows are interleaved together in this layout: 1 for
// LayoutNormal, 2 for LayoutVNNI2 and 4 for LayoutVNNI4.
func (l LayoutType) VNNISize() int {
	switch l {
	case LayoutVNNI2:
		return 2
	case LayoutVNNI4:
		return 4
	default:
		return 1
	}
}
