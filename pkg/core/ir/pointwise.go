// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/kernelgen/pkg/core/shapes"
	"github.com/gomlx/kernelgen/pkg/support/xslices"
)

// Pointwise is an elementwise operation fused after a kernel's main computation.
// It carries an origin link to the operand nodes it consumes, which call-site
// rendering uses to resolve how fused buffers are indexed.
//
// The operation itself is identified by a free-form tag (like "relu" or "add"); the
// code generators decide how each tag is emitted.
type Pointwise struct {
	name     string
	shape    shapes.Shape
	op       string
	operands []Node
}

// NewPointwise creates an elementwise node producing the given shape from the
// operand nodes. The first operand is conventionally the value being transformed.
func NewPointwise(name string, shape shapes.Shape, op string, operands ...Node) *Pointwise {
	if len(operands) == 0 {
		exceptions.Panicf("NewPointwise(%q, %s, %q): at least one operand is required", name, shape, op)
	}
	return &Pointwise{name: name, shape: shape.Clone(), op: op, operands: operands}
}

// Name of the buffer this node writes to.
func (p *Pointwise) Name() string { return p.name }

// Shape of the node.
func (p *Pointwise) Shape() shapes.Shape { return p.shape }

// DType of the node elements.
func (p *Pointwise) DType() dtypes.DType { return p.shape.DType }

// Origin returns the first operand, the value this operation transforms.
func (p *Pointwise) Origin() Node { return p.operands[0] }

// Op returns the operation tag.
func (p *Pointwise) Op() string { return p.op }

// Operands returns the nodes this operation consumes, the origin link used to
// match fused buffers at call sites. The returned slice must not be modified.
func (p *Pointwise) Operands() []Node { return p.operands }

// String implements fmt.Stringer.
func (p *Pointwise) String() string {
	names := xslices.Map(p.operands, func(node Node) string { return node.Name() })
	return fmt.Sprintf("%s: %s = %s(%s)", p.name, p.shape, p.op, strings.Join(names, ", "))
}
