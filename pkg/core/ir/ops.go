// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/kernelgen/pkg/core/shapes"
)

// Pad returns a view of x with the padding given by axesConfig applied to each axis.
// There must be one PadAxis per axis of x, and padding amounts cannot be negative.
//
// Padded positions read as zero when the view is materialized.
func Pad(x Node, axesConfig ...PadAxis) *View {
	rank := x.Shape().Rank()
	if len(axesConfig) != rank {
		exceptions.Panicf("in Pad(x, %v), there must be one PadAxis per axis of x, but x rank is %d",
			axesConfig, rank)
	}
	dimensions := make([]int, rank)
	for axis, config := range axesConfig {
		if config.Start < 0 || config.End < 0 || config.Interior < 0 {
			exceptions.Panicf("in Pad(x, %v), axis %d has negative padding", axesConfig, axis)
		}
		dim := x.Shape().Dimensions[axis]
		dimensions[axis] = config.Start + dim + config.End + max(dim-1, 0)*config.Interior
	}
	return &View{
		base:  x,
		op:    padOp{config: slices.Clone(axesConfig)},
		shape: shapes.Make(x.DType(), dimensions...),
	}
}

// PadLastAxis returns a view of x with the last axis padded at the end by the
// given amount. It is a shortcut for the most common use of Pad.
func PadLastAxis(x Node, end int) *View {
	config := make([]PadAxis, x.Shape().Rank())
	config[len(config)-1].End = end
	return Pad(x, config...)
}

// Reshape x to the given dimensions. Total size cannot change. One dimension can be
// left as -1, in which case it will be set to match the size, if possible.
func Reshape(x Node, dimensions ...int) *View {
	totalSize := x.Shape().Size()
	newSize := 1
	missingIdx := -1
	for idx, dim := range dimensions {
		if dim != -1 {
			newSize *= dim
		} else {
			if missingIdx != -1 {
				exceptions.Panicf("only one dimension can be missing (that is, set to -1) for Reshape, %v given",
					dimensions)
			}
			missingIdx = idx
		}
	}
	if missingIdx != -1 {
		tmpDim := slices.Clone(dimensions)
		tmpDim[missingIdx] = totalSize / newSize
		newSize *= tmpDim[missingIdx]
		if newSize != totalSize {
			exceptions.Panicf(
				"cannot find new dimension for axis %d that will make new dimensions %v match the input size %d (dimensions %v)",
				missingIdx, dimensions, totalSize, x.Shape().Dimensions)
		}
		dimensions = tmpDim
	} else {
		if newSize != totalSize {
			exceptions.Panicf("total requested size %d (dimensions=%v) doesnt match original size %d (dimensions %v)",
				newSize, dimensions, totalSize, x.Shape().Dimensions)
		}
	}
	return &View{
		base:  x,
		op:    reshapeOp{},
		shape: shapes.Make(x.DType(), dimensions...),
	}
}

// Permute returns a view of x with its axes permuted with the given permutation, so
// ∀ i, 0 ≤ i < rank ⇒ output_dimensions[i] = input_dimensions[permutations[i]].
func Permute(x Node, permutations ...int) *View {
	rank := x.Shape().Rank()
	if len(permutations) != rank {
		exceptions.Panicf("in Permute(x, %v), there must be one permutation per axis of x, but x rank is %d",
			permutations, rank)
	}
	permutations = slices.Clone(permutations)
	used := make([]bool, rank)
	for ii, idx := range permutations {
		if idx < 0 {
			idx = rank + idx
			permutations[ii] = idx
		}
		if idx >= rank || idx < 0 {
			exceptions.Panicf("in Permute(x, %v), element %d is %d which is out-of-limits for x rank %d",
				permutations, ii, idx, rank)
		}
		if used[idx] {
			exceptions.Panicf("in Permute(x, %v), axis %d appears more than once", permutations, idx)
		}
		used[idx] = true
	}
	dimensions := make([]int, rank)
	for ii, idx := range permutations {
		dimensions[ii] = x.Shape().Dimensions[idx]
	}
	return &View{
		base:  x,
		op:    permuteOp{permutations: permutations},
		shape: shapes.Make(x.DType(), dimensions...),
	}
}

// Select returns a view of x with the given axis fixed to index and removed from
// the shape, reducing the rank by one. axis can be negative, counting from the end.
func Select(x Node, axis, index int) *View {
	rank := x.Shape().Rank()
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += rank
	}
	if adjustedAxis < 0 || adjustedAxis >= rank {
		exceptions.Panicf("in Select(x, %d, %d), axis is out-of-limits for x rank %d", axis, index, rank)
	}
	dim := x.Shape().Dimensions[adjustedAxis]
	if index < 0 || index >= dim {
		exceptions.Panicf("in Select(x, %d, %d), index is out-of-limits for axis dimension %d", axis, index, dim)
	}
	dimensions := slices.Delete(slices.Clone(x.Shape().Dimensions), adjustedAxis, adjustedAxis+1)
	return &View{
		base:  x,
		op:    selectOp{axis: adjustedAxis, index: index},
		shape: shapes.Make(x.DType(), dimensions...),
	}
}

// Realize turns a view chain into a named Buffer, marking the point where the data
// must be made contiguous. The resulting buffer reports the view as its Origin.
//
// Realizing a Buffer is a no-op and returns the buffer itself, whatever the name given.
func Realize(x Node, name string) *Buffer {
	if buf, ok := x.(*Buffer); ok {
		return buf
	}
	return &Buffer{name: name, shape: x.Shape().Clone(), origin: x}
}
