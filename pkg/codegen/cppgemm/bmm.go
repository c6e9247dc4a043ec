// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cppgemm

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/kernelgen/pkg/codegen/cpputil"
	"github.com/gomlx/kernelgen/pkg/codegen/microgemm"
	"github.com/gomlx/kernelgen/pkg/codegen/render"
	"github.com/gomlx/kernelgen/pkg/core/ir"
	"github.com/gomlx/kernelgen/pkg/core/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// bmmWrapperTemplate is the entry function of a batched GEMM file. The first
// B_single_thread_block batch entries are distributed across the threads, one
// single-threaded GEMM each; the remainder runs the internally threaded GEMM one
// entry at a time, so the tail uses the whole machine instead of a single core.
const bmmWrapperTemplate = `extern "C"
{{.def_kernel}}
{
  const int64_t B = {{.B}};
{{- if gt .num_threads 1}}
  constexpr int64_t num_threads = {{.num_threads}};
  int64_t B_single_thread_block = (B / num_threads) * num_threads;

  #pragma omp parallel for num_threads({{.num_threads}})
{{- else}}
  int64_t B_single_thread_block = B;
{{- end}}
  for (int64_t b_start = 0; b_start < B_single_thread_block; ++b_start) {
    {{.single_thread_call}}
  }
  for (int64_t b_start = B_single_thread_block; b_start < B; ++b_start) {
    {{.threaded_call}}
  }
}`

// GemmFunctionCall registers a deferred call-site render for functionName and
// returns the placeholder that stands in for the call until finalize time.
//
// The rendered call passes every argument of the kernel's final argument table, in
// order. Arguments whose buffer backs one of nodes are sliced down to batch entry
// firstIndex using that node's shape; arguments consumed by one of the epilogue
// nodes are sliced using the epilogue node's shape, the last consumer winning when
// several epilogue nodes share an operand. All other arguments pass unchanged.
//
// It panics if placeholder already has a hook registered.
func GemmFunctionCall(kernel *TemplateKernel, functionName, placeholder, firstIndex string,
	nodes []ir.Node, epilogueNodes []*ir.Pointwise) string {
	sliceNodes := make(map[string]ir.Node, len(nodes))
	for _, node := range nodes {
		sliceNodes[node.Name()] = node
	}
	epilogueByOperand := make(map[string]*ir.Pointwise)
	for _, eNode := range epilogueNodes {
		for _, operand := range eNode.Operands() {
			epilogueByOperand[operand.Name()] = eNode
		}
	}
	hook := func() string {
		defs := kernel.ArgDefs()
		params := make([]string, 0, len(defs))
		for _, def := range defs {
			arg := def.Param
			if node, found := sliceNodes[def.Buffer]; found {
				arg = fmt.Sprintf("&(%s[%s])", arg, kernel.IndexExpr(node, firstIndex))
			} else if eNode, found := epilogueByOperand[def.Buffer]; found {
				arg = fmt.Sprintf("&(%s[%s])", arg, kernel.IndexExpr(eNode, firstIndex))
			}
			params = append(params, arg)
		}
		return fmt.Sprintf("%s(%s);", functionName, strings.Join(params, ", "))
	}
	return kernel.Hooks().Register(placeholder, hook)
}

// BmmTemplate generates a batched GEMM: Y = activation(alpha * X @ W + beta * Y)
// for every batch entry, with X shaped [B, M, K], W shaped [B, K, N] and Y shaped
// [B, M, N].
//
// The file contains the micro-kernel, two GEMM kernels sharing one body (a
// single-threaded one and an internally threaded one) and the entry function
// dispatching batch entries between them. For micro-kernels with a VNNI B layout
// the weights are re-laid out into packed panels at generation time.
type BmmTemplate struct {
	name        string
	x, w, y     *ir.Buffer
	micro       *microgemm.Kernel
	numThreads  int
	alpha, beta float64
	activation  ActivationType
	epilogues   []*ir.Pointwise
}

// bmmPlan is the outcome of preparing one render: the options bag plus the nodes
// the kernel definitions and call sites are built from.
type bmmPlan struct {
	options       render.Options
	bw            ir.Node
	x2d, w2d, y2d ir.Node
}

// NewBmmTemplate creates a generator for a batched GEMM. It panics if the shapes
// or dtypes are inconsistent with each other or with the micro-kernel.
func NewBmmTemplate(name string, x, w, y *ir.Buffer, micro *microgemm.Kernel, numThreads int) *BmmTemplate {
	validateGemmInputs(name, x, w, y, micro, numThreads, 3)
	b := x.Shape().Dim(0)
	m, k := x.Shape().Dim(1), x.Shape().Dim(2)
	n := w.Shape().Dim(2)
	w.Shape().AssertDims(b, k, n)
	y.Shape().AssertDims(b, m, n)
	return &BmmTemplate{
		name: name, x: x, w: w, y: y, micro: micro,
		numThreads: numThreads, alpha: 1, beta: 0,
	}
}

// WithScaling sets the alpha and beta factors of the store section:
// Y = activation(alpha * acc + beta * Y). The defaults are alpha=1, beta=0.
func (t *BmmTemplate) WithScaling(alpha, beta float64) *BmmTemplate {
	t.alpha, t.beta = alpha, beta
	return t
}

// WithActivation fuses the activation into the store section. It panics for
// micro-kernels with non-float accumulators.
func (t *BmmTemplate) WithActivation(activation ActivationType) *BmmTemplate {
	if activation != ActivationNone && !t.micro.ComputeDType.IsFloat() {
		exceptions.Panicf("kernel %q: activation %s requires a float accumulator, micro-kernel %s accumulates in %s",
			t.name, activation, t.micro.Name, t.micro.ComputeDType)
	}
	t.activation = activation
	return t
}

// WithEpilogue appends fused elementwise nodes applied in the store section. Only
// "add" operations are fused: each operand after the first names an extra input
// buffer, shaped like Y, added to the accumulator before the activation. The extra
// buffers become arguments of the generated entry function and are sliced per
// batch entry at the call sites.
func (t *BmmTemplate) WithEpilogue(nodes ...*ir.Pointwise) *BmmTemplate {
	for _, node := range nodes {
		if node.Op() != "add" {
			exceptions.Panicf("kernel %q: unsupported epilogue operation %q in node %s", t.name, node.Op(), node)
		}
		for _, operand := range node.Operands()[1:] {
			operand.Shape().AssertDims(t.y.Shape().Dimensions...)
		}
	}
	t.epilogues = append(t.epilogues, nodes...)
	return t
}

// plan prepares one render: it lays out the weights, registers the accumulator as
// a kernel-internal buffer and assembles the options bag.
func (t *BmmTemplate) plan(kernel *TemplateKernel) *bmmPlan {
	b := t.x.Shape().Dim(0)
	m, k := t.x.Shape().Dim(1), t.x.Shape().Dim(2)
	n := t.w.Shape().Dim(2)

	blockWeights := t.micro.Layout != microgemm.LayoutNormal
	newSize, paddedN := GetPaddedSize(n, t.micro.Blocking.BlockN, k, blockWeights)
	bw := ir.Node(t.w)
	if blockWeights {
		bw = PackVNNIWeight(BlockWeight(t.w, newSize, paddedN-n), t.micro, newSize)
	}
	klog.V(1).Infof("cppgemm: %s weight plan: blocked=%v new_size=%v padded_N=%d micro-kernel=%s",
		t.name, blockWeights, newSize, paddedN, t.micro)

	gemmOut := ir.NewBuffer(t.y.Name()+"_acc", shapes.Make(t.micro.CDType, b, m, n))
	kernel.AddFakeBuffer(gemmOut)
	accDType, err := kernel.DTypeOf(gemmOut.Name())
	if err != nil {
		panic(errors.WithStack(err))
	}
	accType := cpputil.DTypeToCpp(accDType)

	body := gemmBody{
		micro: t.micro, m: m, n: n, k: k, paddedN: paddedN,
		blockedWeights: blockWeights,
		numThreads:     t.numThreads,
		alpha:          t.alpha, beta: t.beta,
		activation:     t.activation,
		epilogueStores: epilogueStoreLines(t.epilogues, accType, n),
		xType:          cpputil.DTypeToCpp(t.x.DType()),
		wType:          cpputil.DTypeToCpp(bw.DType()),
		yType:          cpputil.DTypeToCpp(t.y.DType()),
		accType:        accType,
	}

	x2d := ir.Select(t.x, 0, 0)
	w2d := ir.Select(bw, 0, 0)
	y2d := ir.Select(t.y, 0, 0)

	options := body.options()
	options["B"] = b
	options["BX"] = ir.Node(t.x)
	options["BW"] = bw
	options["BY"] = ir.Node(t.y)
	options["BY_2d"] = ir.Node(t.y)
	options["X"] = ir.Node(x2d)
	options["W"] = ir.Node(w2d)
	options["Y"] = ir.Node(y2d)
	options["Y_2d"] = ir.Node(y2d)
	options["GemmOut"] = ir.Node(ir.Select(gemmOut, 0, 0))
	return &bmmPlan{options: options, bw: bw, x2d: x2d, w2d: w2d, y2d: y2d}
}

// Options assembles the bindings the GEMM bodies and the wrapper are expanded
// with. The batched nodes are entered under BX/BW/BY (BW already re-laid out when
// the micro-kernel wants blocked weights), and X/W/Y/GemmOut/Y_2d hold the
// corresponding single-entry views, stripped with a select of batch entry 0.
func (t *BmmTemplate) Options(kernel *TemplateKernel) render.Options {
	return t.plan(kernel).options
}

// Render generates the C++ translation unit of the batched GEMM.
func (t *BmmTemplate) Render() (string, error) {
	var rendered string
	var renderErr error
	err := exceptions.TryCatch[error](func() { rendered, renderErr = t.render() })
	if err == nil {
		err = renderErr
	}
	return rendered, err
}

// MustRender is like Render but panics on error.
func (t *BmmTemplate) MustRender() string {
	rendered, err := t.Render()
	if err != nil {
		panic(err)
	}
	return rendered
}

func (t *BmmTemplate) render() (string, error) {
	kernel := NewTemplateKernel(t.name)
	plan := t.plan(kernel)

	microDef, err := t.micro.DefineKernel(microGemmFuncName)
	if err != nil {
		return "", err
	}

	inputs := []Arg{{Param: "X", Node: plan.x2d}, {Param: "W", Node: plan.w2d}}
	outputs := []Arg{{Param: "Y", Node: plan.y2d}}
	threadedDef := kernel.DefKernel("threaded_mm", "<THREADED_MM_DEF>", inputs, outputs)
	registerEpilogueInputs(kernel, t.epilogues)
	threadedBody, err := render.Expand("threaded_mm_body", gemmBodyTemplate, plan.options)
	if err != nil {
		return "", err
	}

	singleDef := kernel.DefKernel("single_thread_mm", "<SINGLE_THREAD_MM_DEF>", inputs, outputs)
	singleBody, err := render.Expand("single_thread_mm_body", gemmBodyTemplate,
		plan.options.With("num_threads", 1))
	if err != nil {
		return "", err
	}

	wrapperDef := kernel.DefKernel(t.name, "<DEF_KERNEL>",
		[]Arg{{Param: "X", Node: t.x}, {Param: "W", Node: plan.bw}},
		[]Arg{{Param: "Y", Node: t.y}})
	callNodes := []ir.Node{t.x, plan.bw, t.y}
	singleCall := GemmFunctionCall(kernel, "single_thread_mm", "<SINGLE_THREAD_CALL>", "b_start",
		callNodes, t.epilogues)
	threadedCall := GemmFunctionCall(kernel, "threaded_mm", "<THREADED_MM_CALL>", "b_start",
		callNodes, t.epilogues)
	wrapperText, err := render.Expand("bmm_wrapper", bmmWrapperTemplate,
		plan.options.With("def_kernel", wrapperDef).
			With("single_thread_call", singleCall).
			With("threaded_call", threadedCall))
	if err != nil {
		return "", err
	}

	var file strings.Builder
	file.WriteString(filePrologue)
	file.WriteString(microDef)
	file.WriteString("\n")
	file.WriteString(threadedDef)
	file.WriteString("\n")
	file.WriteString(threadedBody)
	file.WriteString("\n\n")
	file.WriteString(singleDef)
	file.WriteString("\n")
	file.WriteString(singleBody)
	file.WriteString("\n\n")
	file.WriteString(wrapperText)
	file.WriteString("\n")
	return kernel.Hooks().Finalize(file.String())
}
