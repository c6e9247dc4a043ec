// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cppgemm generates C++ matrix-multiplication kernels from IR buffers.
//
// Two generators are provided:
//
//   - GemmTemplate: a single 2-D GEMM kernel, cache-blocked around one of the
//     micro-kernels from package microgemm, with optional scaling and fused
//     elementwise epilogues.
//   - BmmTemplate: a batched GEMM. It renders the same GEMM body twice, as a
//     single-threaded kernel called from a parallel loop over batch entries and as
//     an internally threaded kernel for the leftover entries, plus the wrapper
//     that dispatches between them.
//
// Weights are re-laid out at generation time: padded to a multiple of the
// micro-kernel's column block, optionally split into [nBlocks, K, blockN] panels
// and VNNI-interleaved, all expressed as IR view chains (see BlockWeight and
// PackVNNIWeight) so the packed buffers can be produced with ir.Materialize.
//
// Rendering is deferred where it must be: function signatures and call sites are
// spliced in as placeholder strings and only produced at finalize time, once the
// complete argument table of the generated file is known (see TemplateKernel).
package cppgemm

// microGemmFuncName is the name the micro-kernel is defined under in every
// generated file.
const microGemmFuncName = "kernel_micro_gemm"

// filePrologue is emitted at the top of every generated file.
const filePrologue = `#include <algorithm>
#include <cmath>
#include <cstdint>
`
