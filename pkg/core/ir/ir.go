// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ir implements the small intermediate representation (IR) used by the
// kernel generators to describe buffers and the lazy re-layout transformations
// applied to them before code generation.
//
// There are three kinds of nodes:
//
//   - Buffer: a named, concretely shaped storage node. Kernel inputs and outputs
//     are buffers, and so is the result of materializing a chain of views (see Realize).
//   - View: a lazy transformation (Pad, Reshape, Permute or Select) over a base node.
//     Views don't own storage, they reference the buffer at the bottom of their chain.
//   - Pointwise: an elementwise operation fused after a kernel's main computation,
//     keeping an origin link to the operands it consumes.
//
// Transformations compose by nesting views. A chain is turned back into a Buffer
// with Realize, which marks the point where generated code (or the host evaluator
// in this package, see Materialize) must produce contiguous data.
package ir

import (
	"fmt"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/kernelgen/pkg/core/shapes"
	"github.com/gomlx/kernelgen/pkg/support/xslices"
)

// Node is a value in the IR: a Buffer, a View or a Pointwise.
type Node interface {
	shapes.HasShape

	// Name of the buffer this node reads from. For a View it is the name of the
	// buffer at the bottom of the view chain.
	Name() string

	// DType of the node elements.
	DType() dtypes.DType

	// Origin returns the node this one is computed from: the producing view for a
	// realized Buffer (nil for plain inputs and outputs), the base node for a View
	// and the first operand for a Pointwise.
	Origin() Node

	// String returns a description of the node chain, for logging and errors.
	String() string
}

// PadAxis defines the amount of padding preceding one axis (Start), at the end
// of the axis (End) or in between the elements (Interior).
// This is used as a parameter for the Pad operation.
type PadAxis struct {
	Start, End, Interior int
}

// Buffer is a named storage node with a concrete shape.
//
// Buffers either represent kernel inputs and outputs, or the materialization of a
// view chain, in which case Origin returns the view they were realized from.
type Buffer struct {
	name   string
	shape  shapes.Shape
	origin Node
}

// NewBuffer creates a storage node with the given name and shape.
func NewBuffer(name string, shape shapes.Shape) *Buffer {
	return &Buffer{name: name, shape: shape}
}

// Name of the buffer, as referenced by generated code.
func (b *Buffer) Name() string { return b.name }

// Shape of the buffer.
func (b *Buffer) Shape() shapes.Shape { return b.shape }

// DType of the buffer elements.
func (b *Buffer) DType() dtypes.DType { return b.shape.DType }

// Origin returns the view this buffer was realized from, or nil if it is a plain
// input or output buffer.
func (b *Buffer) Origin() Node { return b.origin }

// String implements fmt.Stringer.
func (b *Buffer) String() string {
	if b.origin == nil {
		return fmt.Sprintf("%s: %s", b.name, b.shape)
	}
	return fmt.Sprintf("%s: %s = realize(%s)", b.name, b.shape, b.origin)
}

// viewOp is one lazy transformation applied by a View to its base node.
type viewOp interface {
	opString() string
}

type padOp struct {
	config []PadAxis
}

func (op padOp) opString() string {
	parts := xslices.Map(op.config, func(axis PadAxis) string {
		return fmt.Sprintf("(%d,%d,%d)", axis.Start, axis.End, axis.Interior)
	})
	return fmt.Sprintf("Pad[%s]", strings.Join(parts, " "))
}

type reshapeOp struct{}

func (op reshapeOp) opString() string { return "Reshape" }

type permuteOp struct {
	permutations []int
}

func (op permuteOp) opString() string { return fmt.Sprintf("Permute%v", op.permutations) }

type selectOp struct {
	axis, index int
}

func (op selectOp) opString() string { return fmt.Sprintf("Select[axis=%d, index=%d]", op.axis, op.index) }

// View is a lazy transformation over a base node. It owns no storage: its Name
// refers to the buffer at the bottom of the chain.
//
// Views are created with the Pad, Reshape, Permute and Select operations.
type View struct {
	base  Node
	op    viewOp
	shape shapes.Shape
}

// Name returns the name of the buffer at the bottom of the view chain.
func (v *View) Name() string { return v.base.Name() }

// Shape of the view.
func (v *View) Shape() shapes.Shape { return v.shape }

// DType of the view elements.
func (v *View) DType() dtypes.DType { return v.shape.DType }

// Origin returns the node this view transforms.
func (v *View) Origin() Node { return v.base }

// String implements fmt.Stringer: it prints the whole view chain.
func (v *View) String() string {
	return fmt.Sprintf("%s(%s) -> %s", v.op.opString(), v.base, v.shape)
}
