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
	"k8s.io/klog/v2"
)

// gemmBodyTemplate is the cache-blocked GEMM loop nest shared by all generated
// kernels. It assumes the function signature was already emitted: the body opens
// and closes its own braces.
//
// X is row-major [M, K]. With blocked_weights, W holds one contiguous [K, block_n]
// panel per column block (VNNI interleaved or not, the micro-kernel reads both);
// otherwise W is row-major [K, N]. Column tiles past N are computed into the local
// accumulator and discarded at store time.
const gemmBodyTemplate = `{
  constexpr int64_t M = {{.M}};
  constexpr int64_t N = {{.N}};
  constexpr int64_t K = {{.K}};
  constexpr int64_t lda = {{.lda}};
  constexpr int64_t ldb = {{.ldb}};
  constexpr int64_t ldc = {{.ldc}};
  constexpr int64_t Mr = {{.block_m}};
  constexpr int64_t Nr = {{.block_n}};
  constexpr int64_t Mc = {{.Mc}};
  constexpr int64_t Nc = {{.Nc}};
  constexpr int64_t Kc = {{.Kc}};
  constexpr int64_t n_range = {{.n_range}};
{{- if gt .num_threads 1}}
  #pragma omp parallel for num_threads({{.num_threads}}) collapse(2) schedule(static)
{{- end}}
  for (int64_t mc = 0; mc < M; mc += Mc) {
    for (int64_t nc = 0; nc < n_range; nc += Nc) {
      const int64_t mc_end = std::min(mc + Mc, M);
      const int64_t nc_end = std::min(nc + Nc, n_range);
      alignas(64) {{.acc_t}} acc_local[Mr * Nr];
      for (int64_t m = mc; m < mc_end; m += Mr) {
        const int64_t m_size = std::min(Mr, M - m);
        for (int64_t n = nc; n < nc_end; n += Nr) {
          const int64_t n_size = std::min(Nr, n_range - n);
          for (int64_t kc = 0; kc < K; kc += Kc) {
            const int64_t k_size = std::min(Kc, K - kc);
{{- if .blocked_weights}}
            const {{.W_dtype}}* b_panel = W + (n / Nr) * K * ldb + kc * ldb;
{{- else}}
            const {{.W_dtype}}* b_panel = W + kc * ldb + n;
{{- end}}
            if (kc == 0) {
              {{.micro_gemm}}<false>(X + m * lda + kc, b_panel, acc_local,
                                     m_size, n_size, k_size, lda, ldb, Nr);
            } else {
              {{.micro_gemm}}<true>(X + m * lda + kc, b_panel, acc_local,
                                    m_size, n_size, k_size, lda, ldb, Nr);
            }
          }
          const int64_t n_store = std::min(n_size, N - n);
          for (int64_t mm = 0; mm < m_size; ++mm) {
            for (int64_t nn = 0; nn < n_store; ++nn) {
              {{.acc_t}} out_val = acc_local[mm * Nr + nn];
{{- if .use_alpha}}
              out_val *= ({{.acc_t}}){{.alpha}};
{{- end}}
{{- if .use_beta}}
              out_val += ({{.acc_t}}){{.beta}} * ({{.acc_t}})Y[(m + mm) * ldc + (n + nn)];
{{- end}}
{{- range .epilogue_stores}}
              {{.}}
{{- end}}
              Y[(m + mm) * ldc + (n + nn)] = ({{.Y_dtype}})({{.activation_expr}});
            }
          }
        }
      }
    }
  }
}`

// gemmBody carries the scalar configuration one GEMM body expansion needs.
type gemmBody struct {
	micro          *microgemm.Kernel
	m, n, k        int
	paddedN        int
	blockedWeights bool
	numThreads     int
	alpha, beta    float64
	activation     ActivationType
	epilogueStores []string

	xType, wType, yType, accType string
}

// options assembles the bindings gemmBodyTemplate is expanded with.
func (b *gemmBody) options() render.Options {
	nRange := b.n
	ldb := b.n
	if b.blockedWeights {
		nRange = b.paddedN
		ldb = b.micro.Blocking.BlockN
	}
	return render.Options{
		"M":               b.m,
		"N":               b.n,
		"K":               b.k,
		"padded_N":        b.paddedN,
		"n_range":         nRange,
		"lda":             b.k,
		"ldb":             ldb,
		"ldc":             b.n,
		"block_m":         b.micro.Blocking.BlockM,
		"block_n":         b.micro.Blocking.BlockN,
		"Mc":              b.micro.Cache.Mc,
		"Nc":              b.micro.Cache.Nc,
		"Kc":              b.micro.Cache.Kc,
		"num_threads":     b.numThreads,
		"micro_gemm":      microGemmFuncName,
		"blocked_weights": b.blockedWeights,
		"alpha":           cpputil.FloatLiteral(b.alpha),
		"beta":            cpputil.FloatLiteral(b.beta),
		"use_alpha":       b.alpha != 1,
		"use_beta":        b.beta != 0,
		"X_dtype":         b.xType,
		"W_dtype":         b.wType,
		"Y_dtype":         b.yType,
		"acc_t":           b.accType,
		"activation_expr": b.activation.CppExpr("out_val", b.accType),
		"epilogue_stores": b.epilogueStores,
	}
}

// epilogueStoreLines returns the store-section lines adding the extra operands of
// the epilogue nodes to the accumulator. The first operand of each node is the
// value being transformed and is skipped; ldc is the row stride of the output tile
// the extra operands are indexed with.
func epilogueStoreLines(epilogues []*ir.Pointwise, accType string, ldc int) []string {
	var lines []string
	for _, node := range epilogues {
		for _, operand := range node.Operands()[1:] {
			lines = append(lines, fmt.Sprintf("out_val += (%s)%s[(m + mm) * %d + (n + nn)];",
				accType, operand.Name(), ldc))
		}
	}
	return lines
}

// registerEpilogueInputs enters the extra operands of the epilogue nodes into the
// kernel's argument table, after the main arguments.
func registerEpilogueInputs(kernel *TemplateKernel, epilogues []*ir.Pointwise) {
	for _, node := range epilogues {
		for _, operand := range node.Operands()[1:] {
			kernel.AddInput(operand.Name(), operand)
		}
	}
}

// GemmTemplate generates one 2-D GEMM kernel: Y = activation(alpha * X @ W + beta * Y),
// with the weights re-laid out into blocked (and, where the micro-kernel asks for
// it, VNNI interleaved) panels at generation time.
type GemmTemplate struct {
	name        string
	x, w, y     *ir.Buffer
	micro       *microgemm.Kernel
	numThreads  int
	alpha, beta float64
	activation  ActivationType
	epilogues   []*ir.Pointwise
}

// NewGemmTemplate creates a generator for Y = X @ W with X shaped [M, K], W shaped
// [K, N] and Y shaped [M, N]. It panics if the shapes or dtypes are inconsistent
// with each other or with the micro-kernel.
func NewGemmTemplate(name string, x, w, y *ir.Buffer, micro *microgemm.Kernel, numThreads int) *GemmTemplate {
	validateGemmInputs(name, x, w, y, micro, numThreads, 2)
	m, k := x.Shape().Dim(0), x.Shape().Dim(1)
	n := w.Shape().Dim(1)
	w.Shape().AssertDims(k, n)
	y.Shape().AssertDims(m, n)
	return &GemmTemplate{
		name: name, x: x, w: w, y: y, micro: micro,
		numThreads: numThreads, alpha: 1, beta: 0,
	}
}

// validateGemmInputs panics on the preconditions shared by both generators: rank
// is 2 for a plain GEMM and 3 for a batched one.
func validateGemmInputs(name string, x, w, y *ir.Buffer, micro *microgemm.Kernel, numThreads, rank int) {
	if name == "" {
		exceptions.Panicf("kernel name cannot be empty")
	}
	if micro == nil {
		exceptions.Panicf("kernel %q: micro-kernel cannot be nil", name)
	}
	if !micro.Layout.IsALayoutType() {
		exceptions.Panicf("kernel %q: micro-kernel %s has unknown B layout %d", name, micro.Name, int(micro.Layout))
	}
	if numThreads < 1 {
		exceptions.Panicf("kernel %q: numThreads=%d must be at least 1", name, numThreads)
	}
	shapes.AssertRank(x, rank)
	shapes.AssertRank(w, rank)
	shapes.AssertRank(y, rank)
	if x.DType() != micro.ADType {
		exceptions.Panicf("kernel %q: X dtype %s does not match micro-kernel %s input dtype %s",
			name, x.DType(), micro.Name, micro.ADType)
	}
	if w.DType() != micro.BDType {
		exceptions.Panicf("kernel %q: W dtype %s does not match micro-kernel %s weight dtype %s",
			name, w.DType(), micro.Name, micro.BDType)
	}
	if x.Name() == w.Name() || x.Name() == y.Name() || w.Name() == y.Name() {
		exceptions.Panicf("kernel %q: X, W and Y must be distinct buffers, got %q, %q and %q",
			name, x.Name(), w.Name(), y.Name())
	}
	k := x.Shape().Dim(-1)
	if vnni := micro.VNNISize(); k%vnni != 0 {
		exceptions.Panicf("kernel %q: K=%d must be a multiple of the VNNI size %d of micro-kernel %s",
			name, k, vnni, micro.Name)
	}
}

// WithScaling sets the alpha and beta factors of the store section:
// Y = activation(alpha * acc + beta * Y). The defaults are alpha=1, beta=0.
func (t *GemmTemplate) WithScaling(alpha, beta float64) *GemmTemplate {
	t.alpha, t.beta = alpha, beta
	return t
}

// WithActivation fuses the activation into the store section. It panics for
// micro-kernels with non-float accumulators.
func (t *GemmTemplate) WithActivation(activation ActivationType) *GemmTemplate {
	if activation != ActivationNone && !t.micro.ComputeDType.IsFloat() {
		exceptions.Panicf("kernel %q: activation %s requires a float accumulator, micro-kernel %s accumulates in %s",
			t.name, activation, t.micro.Name, t.micro.ComputeDType)
	}
	t.activation = activation
	return t
}

// WithEpilogue appends fused elementwise nodes applied in the store section. Only
// "add" operations are fused: each operand after the first names an extra input
// buffer, shaped like Y, added to the accumulator before the activation.
func (t *GemmTemplate) WithEpilogue(nodes ...*ir.Pointwise) *GemmTemplate {
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

// Render generates the C++ translation unit: the micro-kernel definition followed
// by the GEMM entry function.
func (t *GemmTemplate) Render() (string, error) {
	var rendered string
	var renderErr error
	err := exceptions.TryCatch[error](func() { rendered, renderErr = t.render() })
	if err == nil {
		err = renderErr
	}
	return rendered, err
}

// MustRender is like Render but panics on error.
func (t *GemmTemplate) MustRender() string {
	rendered, err := t.Render()
	if err != nil {
		panic(err)
	}
	return rendered
}

func (t *GemmTemplate) render() (string, error) {
	kernel := NewTemplateKernel(t.name)
	m, k := t.x.Shape().Dim(0), t.x.Shape().Dim(1)
	n := t.w.Shape().Dim(1)

	newSize, paddedN := GetPaddedSize(n, t.micro.Blocking.BlockN, k, true)
	bw := PackVNNIWeight(BlockWeight(t.w, newSize, paddedN-n), t.micro, newSize)
	if _, isBuffer := bw.(*ir.Buffer); !isBuffer {
		bw = ir.Realize(bw, t.w.Name()+"_blocked")
	}
	klog.V(1).Infof("cppgemm: rendering %s: M=%d N=%d K=%d padded_N=%d micro-kernel=%s",
		t.name, m, n, k, paddedN, t.micro)

	gemmOut := ir.NewBuffer(t.y.Name()+"_acc", shapes.Make(t.micro.CDType, m, n))
	kernel.AddFakeBuffer(gemmOut)
	accDType, err := kernel.DTypeOf(gemmOut.Name())
	if err != nil {
		return "", err
	}
	accType := cpputil.DTypeToCpp(accDType)

	defPlaceholder := kernel.DefKernel(t.name, "<DEF_KERNEL>",
		[]Arg{{Param: "X", Node: t.x}, {Param: "W", Node: ir.Select(bw, 0, 0)}},
		[]Arg{{Param: "Y", Node: t.y}})
	registerEpilogueInputs(kernel, t.epilogues)

	body := gemmBody{
		micro: t.micro, m: m, n: n, k: k, paddedN: paddedN,
		blockedWeights: true,
		numThreads:     t.numThreads,
		alpha:          t.alpha, beta: t.beta,
		activation:     t.activation,
		epilogueStores: epilogueStoreLines(t.epilogues, accType, n),
		xType:          cpputil.DTypeToCpp(t.x.DType()),
		wType:          cpputil.DTypeToCpp(bw.DType()),
		yType:          cpputil.DTypeToCpp(t.y.DType()),
		accType:        accType,
	}
	bodyText, err := render.Expand("gemm_body", gemmBodyTemplate, body.options())
	if err != nil {
		return "", err
	}
	microDef, err := t.micro.DefineKernel(microGemmFuncName)
	if err != nil {
		return "", err
	}

	var file strings.Builder
	file.WriteString(filePrologue)
	file.WriteString(microDef)
	file.WriteString("\nextern \"C\"\n")
	file.WriteString(defPlaceholder)
	file.WriteString("\n")
	file.WriteString(bodyText)
	file.WriteString("\n")
	return kernel.Hooks().Finalize(file.String())
}
