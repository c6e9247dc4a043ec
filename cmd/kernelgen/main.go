// kernelgen generates standalone C++ matrix multiplication kernels from the command line.
//
// By default it emits a batched matmul (BMM) kernel for the requested problem size,
// selecting a micro-kernel for the widest ISA of the host CPU. Set -batch=0 for a
// plain 2D GEMM. Example:
//
//	kernelgen -batch=8 -m=384 -n=512 -k=768 -dtype=bfloat16 -bias -activation=gelu -out=bmm.cpp -summary
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/kernelgen/pkg/codegen/cppgemm"
	"github.com/gomlx/kernelgen/pkg/codegen/microgemm"
	"github.com/gomlx/kernelgen/pkg/core/ir"
	"github.com/gomlx/kernelgen/pkg/core/shapes"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagName  = flag.String("name", "bmm_kernel", "Name of the generated kernel function.")
	flagBatch = flag.Int("batch", 8, "Batch dimension (B) of the operands. Set to 0 to generate a 2D GEMM kernel instead.")
	flagM     = flag.Int("m", 128, "Rows (M) of the X operand and of the output.")
	flagN     = flag.Int("n", 128, "Columns (N) of the W operand and of the output.")
	flagK     = flag.Int("k", 128, "Contracting dimension (K) between X and W.")

	flagDType = flag.String("dtype", "float32", "DType of the X and W operands.")
	flagISA   = flag.String("isa", "", fmt.Sprintf("Target ISA for micro-kernel selection, one of %v. "+
		"It defaults to the widest ISA supported by this machine.", microgemm.ISAStrings()))
	flagThreads = flag.Int("threads", runtime.NumCPU(), "Number of OpenMP threads the kernel is generated for.")

	flagAlpha      = flag.Float64("alpha", 1, "Scale applied to the X @ W product.")
	flagBeta       = flag.Float64("beta", 0, "Scale of the previous output value added into the result. 0 means the output is not read.")
	flagActivation = flag.String("activation", "none", "Activation fused into the output store, one of none, relu, gelu, silu or tanh.")
	flagBias       = flag.Bool("bias", false, "Fuse the addition of a bias buffer (same shape as the output) into the output store.")

	flagOut     = flag.String("out", "", "File to write the generated C++ source to. It writes to stdout if empty.")
	flagSummary = flag.Bool("summary", false, "Print a table summarizing the generated kernel.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'kernelgen -help'.", flag.Args())
		os.Exit(1)
	}
	generate()
}

func generate() {
	dtype := must.M1(dtypes.DTypeString(*flagDType))
	isa := microgemm.HostISA()
	if *flagISA != "" {
		isa = must.M1(microgemm.ISAString(*flagISA))
	}
	micro := must.M1(microgemm.Pick(dtype, isa))
	activation := must.M1(cppgemm.ParseActivationType(*flagActivation))

	// Low precision inputs are accumulated and stored in the micro-kernel's wider
	// output type, float inputs keep their own dtype on the output.
	yDType := dtype
	if !dtype.IsFloat() {
		yDType = micro.CDType
	}

	batched := *flagBatch > 0
	var x, w, y *ir.Buffer
	if batched {
		x = ir.NewBuffer("X", shapes.Make(dtype, *flagBatch, *flagM, *flagK))
		w = ir.NewBuffer("W", shapes.Make(dtype, *flagBatch, *flagK, *flagN))
		y = ir.NewBuffer("Y", shapes.Make(yDType, *flagBatch, *flagM, *flagN))
	} else {
		x = ir.NewBuffer("X", shapes.Make(dtype, *flagM, *flagK))
		w = ir.NewBuffer("W", shapes.Make(dtype, *flagK, *flagN))
		y = ir.NewBuffer("Y", shapes.Make(yDType, *flagM, *flagN))
	}
	var bias *ir.Buffer
	if *flagBias {
		bias = ir.NewBuffer("bias", y.Shape().Clone())
	}

	var rendered string
	if batched {
		tmpl := cppgemm.NewBmmTemplate(*flagName, x, w, y, micro, *flagThreads).
			WithScaling(*flagAlpha, *flagBeta).
			WithActivation(activation)
		if bias != nil {
			tmpl.WithEpilogue(ir.NewPointwise(y.Name()+"_bias", y.Shape(), "add", y, bias))
		}
		rendered = must.M1(tmpl.Render())
	} else {
		tmpl := cppgemm.NewGemmTemplate(*flagName, x, w, y, micro, *flagThreads).
			WithScaling(*flagAlpha, *flagBeta).
			WithActivation(activation)
		if bias != nil {
			tmpl.WithEpilogue(ir.NewPointwise(y.Name()+"_bias", y.Shape(), "add", y, bias))
		}
		rendered = must.M1(tmpl.Render())
	}

	if *flagOut == "" {
		fmt.Print(rendered)
	} else {
		must.M(os.WriteFile(*flagOut, []byte(rendered), 0644))
		fmt.Printf("✅ kernelgen: wrote %s (%s)\n", *flagOut, humanize.Bytes(uint64(len(rendered))))
	}

	if *flagSummary {
		printSummary(micro, activation, x, w, y, bias, len(rendered))
	}
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1).Align(lipgloss.Right)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1).Align(lipgloss.Left)
)

func newSummaryTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return labelStyle
			}
			return valueStyle
		})
}

func printSummary(micro *microgemm.Kernel, activation cppgemm.ActivationType,
	x, w, y, bias *ir.Buffer, renderedBytes int) {
	kind := "matmul (gemm)"
	blockWeights := true
	if *flagBatch > 0 {
		kind = "batched matmul (bmm)"
		blockWeights = micro.Layout != microgemm.LayoutNormal
	}
	newSize, paddedN := cppgemm.GetPaddedSize(*flagN, micro.Blocking.BlockN, *flagK, blockWeights)

	fmt.Println(titleStyle.Render("Generated Kernel"))
	table := newSummaryTable()
	table.Row("kernel", fmt.Sprintf("%s, %s", *flagName, kind))
	table.Row("micro-kernel", micro.String())
	table.Row("threads", strconv.Itoa(*flagThreads))
	for _, buf := range []*ir.Buffer{x, w, y, bias} {
		if buf == nil {
			continue
		}
		table.Row(buf.Name(), fmt.Sprintf("%s, %s",
			buf.Shape(), humanize.Bytes(uint64(buf.Shape().Memory()))))
	}
	if blockWeights {
		table.Row("padded N", humanize.Comma(int64(paddedN)))
		table.Row("packed W view", fmt.Sprintf("%v", newSize))
	}
	table.Row("alpha / beta", fmt.Sprintf("%g / %g", *flagAlpha, *flagBeta))
	table.Row("activation", activation.String())
	table.Row("source size", humanize.Bytes(uint64(renderedBytes)))
	fmt.Println(table.Render())
}
