// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/kernelgen/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// HostBuffer pairs a shape with flat row-major data on the host.
//
// It is the currency of Materialize: callers provide one per input buffer and get
// one back with the evaluated result.
type HostBuffer struct {
	Shape shapes.Shape

	// Data is a flat slice of the Go type corresponding to Shape.DType, in
	// row-major order, e.g. []float32 for dtypes.Float32.
	Data any
}

// HostBufferFromFlat creates a HostBuffer from flat row-major data. The dtype is
// taken from T. It panics if len(data) doesn't match the size of the dimensions.
func HostBufferFromFlat[T dtypes.Supported](data []T, dimensions ...int) *HostBuffer {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("HostBufferFromFlat: got %d elements for shape %s (size %d)",
			len(data), shape, shape.Size())
	}
	return &HostBuffer{Shape: shape, Data: data}
}

// Materialize evaluates a node chain on the host and returns its contiguous data.
//
// inputs maps buffer names to their host data. Every plain Buffer reachable from
// node must have an entry with a matching shape. Padded positions read as zero.
//
// The returned buffer may share storage with an input when the chain only contains
// aliasing transformations (Reshape).
//
// This is not the code path used by the generated kernels, which re-layout data in
// C++. It exists so re-layout chains can be checked (and debugged) on the host.
func Materialize(node Node, inputs map[string]*HostBuffer) (*HostBuffer, error) {
	switch node.DType() {
	case dtypes.Float32:
		return materializeTyped[float32](node, inputs)
	case dtypes.Float64:
		return materializeTyped[float64](node, inputs)
	case dtypes.Float16:
		return materializeTyped[float16.Float16](node, inputs)
	case dtypes.BFloat16:
		return materializeTyped[bfloat16.BFloat16](node, inputs)
	case dtypes.Int8:
		return materializeTyped[int8](node, inputs)
	case dtypes.Int16:
		return materializeTyped[int16](node, inputs)
	case dtypes.Int32:
		return materializeTyped[int32](node, inputs)
	case dtypes.Int64:
		return materializeTyped[int64](node, inputs)
	case dtypes.Uint8:
		return materializeTyped[uint8](node, inputs)
	case dtypes.Uint16:
		return materializeTyped[uint16](node, inputs)
	case dtypes.Uint32:
		return materializeTyped[uint32](node, inputs)
	case dtypes.Uint64:
		return materializeTyped[uint64](node, inputs)
	default:
		return nil, errors.Errorf("Materialize: dtype %s not supported", node.DType())
	}
}

func materializeTyped[T any](node Node, inputs map[string]*HostBuffer) (*HostBuffer, error) {
	data, err := evalNode[T](node, inputs)
	if err != nil {
		return nil, err
	}
	return &HostBuffer{Shape: node.Shape().Clone(), Data: data}, nil
}

func evalNode[T any](node Node, inputs map[string]*HostBuffer) ([]T, error) {
	switch n := node.(type) {
	case *Buffer:
		if n.origin != nil {
			return evalNode[T](n.origin, inputs)
		}
		hostBuf, found := inputs[n.name]
		if !found {
			return nil, errors.Errorf("Materialize: no host data given for buffer %q", n.name)
		}
		if !hostBuf.Shape.Equal(n.shape) {
			return nil, errors.Errorf("Materialize: host data for buffer %q has shape %s, want %s",
				n.name, hostBuf.Shape, n.shape)
		}
		data, ok := hostBuf.Data.([]T)
		if !ok {
			return nil, errors.Errorf("Materialize: host data for buffer %q has type %T, want []%s",
				n.name, hostBuf.Data, n.shape.DType)
		}
		return data, nil
	case *View:
		baseData, err := evalNode[T](n.base, inputs)
		if err != nil {
			return nil, err
		}
		return applyOp(n, baseData), nil
	default:
		return nil, errors.Errorf("Materialize: unknown node type %T", node)
	}
}

// applyOp evaluates one view transformation over contiguous base data.
// The parameters were validated when the view was built.
func applyOp[T any](v *View, baseData []T) []T {
	baseShape := v.base.Shape()
	switch op := v.op.(type) {
	case reshapeOp:
		// Row-major flat data is unchanged by a reshape.
		return baseData

	case padOp:
		out := make([]T, v.shape.Size())
		outStrides := v.shape.Strides()
		for flatIdx, indices := range baseShape.Iter() {
			outFlat := 0
			for axis, idx := range indices {
				outFlat += (op.config[axis].Start + idx*(op.config[axis].Interior+1)) * outStrides[axis]
			}
			out[outFlat] = baseData[flatIdx]
		}
		return out

	case permuteOp:
		out := make([]T, v.shape.Size())
		baseStrides := baseShape.Strides()
		for flatIdx, indices := range v.shape.Iter() {
			baseFlat := 0
			for axis, idx := range indices {
				baseFlat += idx * baseStrides[op.permutations[axis]]
			}
			out[flatIdx] = baseData[baseFlat]
		}
		return out

	case selectOp:
		out := make([]T, v.shape.Size())
		baseStrides := baseShape.Strides()
		offset := op.index * baseStrides[op.axis]
		for flatIdx, indices := range v.shape.Iter() {
			baseFlat := offset
			outAxis := 0
			for baseAxis := range baseShape.Rank() {
				if baseAxis == op.axis {
					continue
				}
				baseFlat += indices[outAxis] * baseStrides[baseAxis]
				outAxis++
			}
			out[flatIdx] = baseData[baseFlat]
		}
		return out
	}
	return nil
}
