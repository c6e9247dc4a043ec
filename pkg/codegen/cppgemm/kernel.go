// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cppgemm

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/kernelgen/pkg/codegen/cpputil"
	"github.com/gomlx/kernelgen/pkg/codegen/render"
	"github.com/gomlx/kernelgen/pkg/core/ir"
	"github.com/pkg/errors"
)

// Arg binds a C++ parameter name to the IR node backing it.
type Arg struct {
	Param string
	Node  ir.Node
}

// ArgDef is one entry of a kernel's final argument table: the parameter name used
// at call sites and the name of the buffer behind it.
type ArgDef struct {
	Param  string
	Buffer string
	Node   ir.Node
}

type kernelArg struct {
	param    string
	node     ir.Node
	isOutput bool
}

// TemplateKernel collects the state of one kernel file being rendered: the
// argument table shared by every function in the file, the buffers that exist only
// inside the generated code, and the hooks deferring parts of the output until the
// argument table is complete.
type TemplateKernel struct {
	name  string
	args  []kernelArg
	index map[string]int
	fakes map[string]dtypes.DType
	hooks render.Hooks
}

// NewTemplateKernel creates the rendering state for one kernel file. The name
// becomes the entry function of the file.
func NewTemplateKernel(name string) *TemplateKernel {
	if name == "" {
		exceptions.Panicf("NewTemplateKernel: kernel name cannot be empty")
	}
	return &TemplateKernel{
		name:  name,
		index: make(map[string]int),
		fakes: make(map[string]dtypes.DType),
	}
}

// Name of the kernel, also the name of the generated entry function.
func (k *TemplateKernel) Name() string { return k.name }

// Hooks returns the deferred render hooks of the file being generated.
func (k *TemplateKernel) Hooks() *render.Hooks { return &k.hooks }

// registerArg adds node under param to the argument table, or marks the existing
// entry as an output. Arguments are keyed by buffer name, so registering the
// batched and the batch-stripped view of the same buffer yields one argument.
func (k *TemplateKernel) registerArg(param string, node ir.Node, isOutput bool) {
	bufName := node.Name()
	if _, found := k.fakes[bufName]; found {
		exceptions.Panicf("buffer %q exists only inside kernel %q and cannot be an argument", bufName, k.name)
	}
	if pos, found := k.index[bufName]; found {
		k.args[pos].isOutput = k.args[pos].isOutput || isOutput
		return
	}
	k.index[bufName] = len(k.args)
	k.args = append(k.args, kernelArg{param: param, node: node, isOutput: isOutput})
}

// AddInput registers an extra input argument, like the operand buffer of a fused
// epilogue. Registering the same buffer again is a no-op.
func (k *TemplateKernel) AddInput(param string, node ir.Node) {
	k.registerArg(param, node, false)
}

// AddFakeBuffer registers a buffer that only exists inside the generated kernel,
// like the local accumulator. Fake buffers never become kernel arguments; their
// dtype is resolved through this kernel (see DTypeOf) instead of any global state.
func (k *TemplateKernel) AddFakeBuffer(buf *ir.Buffer) {
	if _, found := k.index[buf.Name()]; found {
		exceptions.Panicf("buffer %q is already an argument of kernel %q and cannot be marked fake", buf.Name(), k.name)
	}
	k.fakes[buf.Name()] = buf.DType()
}

// DTypeOf resolves the dtype of a buffer by name, checking the argument table
// first and then the fake buffers.
func (k *TemplateKernel) DTypeOf(bufName string) (dtypes.DType, error) {
	if pos, found := k.index[bufName]; found {
		return k.args[pos].node.DType(), nil
	}
	if dtype, found := k.fakes[bufName]; found {
		return dtype, nil
	}
	return dtypes.InvalidDType, errors.Errorf("buffer %q is not known to kernel %q", bufName, k.name)
}

// ArgDefs returns the current argument table in registration order.
func (k *TemplateKernel) ArgDefs() []ArgDef {
	defs := make([]ArgDef, 0, len(k.args))
	for _, arg := range k.args {
		defs = append(defs, ArgDef{Param: arg.param, Buffer: arg.node.Name(), Node: arg.node})
	}
	return defs
}

// DefKernel registers the inputs and outputs as kernel arguments and returns a
// placeholder for the function signature.
//
// The signature text is deferred: it is rendered at finalize time, once every
// function in the file had a chance to add arguments, so all signatures in the
// file share the complete argument table in registration order.
func (k *TemplateKernel) DefKernel(functionName, placeholder string, inputs, outputs []Arg) string {
	for _, arg := range inputs {
		k.registerArg(arg.Param, arg.Node, false)
	}
	for _, arg := range outputs {
		k.registerArg(arg.Param, arg.Node, true)
	}
	hook := func() string {
		params := make([]string, 0, len(k.args))
		for _, arg := range k.args {
			cppType := cpputil.DTypeToCpp(arg.node.DType())
			if arg.isOutput {
				params = append(params, fmt.Sprintf("%s* __restrict__ %s", cppType, arg.param))
			} else {
				params = append(params, fmt.Sprintf("const %s* __restrict__ %s", cppType, arg.param))
			}
		}
		return fmt.Sprintf("void %s(%s)", functionName, strings.Join(params, ", "))
	}
	return k.hooks.Register(placeholder, hook)
}

// IndexExpr returns the C++ flat index of element [firstIndex, 0, 0, ...] of node,
// used to slice a batched argument down to the sub-tensor one call operates on.
func (k *TemplateKernel) IndexExpr(node ir.Node, firstIndex string) string {
	strides := node.Shape().Strides()
	if len(strides) == 0 {
		return "0"
	}
	return fmt.Sprintf("%s * %dLL", firstIndex, strides[0])
}
