// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cpputil has small helpers shared by the C++ code generators: the dtype
// to C++ scalar type mapping and literal formatting.
package cpputil

import (
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// DTypeToCpp returns the C++ scalar type used for the given dtype in generated
// kernels. Half precision types use the compiler-native _Float16 and __bf16, so the
// generated code only depends on the C++ standard library and OpenMP.
//
// It panics for dtypes that have no C++ rendering (complex types for instance);
// kernel selection is expected to have rejected those before code generation.
func DTypeToCpp(dtype dtypes.DType) string {
	switch dtype {
	case dtypes.Float32:
		return "float"
	case dtypes.Float64:
		return "double"
	case dtypes.Float16:
		return "_Float16"
	case dtypes.BFloat16:
		return "__bf16"
	case dtypes.Int8:
		return "int8_t"
	case dtypes.Int16:
		return "int16_t"
	case dtypes.Int32:
		return "int32_t"
	case dtypes.Int64:
		return "int64_t"
	case dtypes.Uint8:
		return "uint8_t"
	case dtypes.Uint16:
		return "uint16_t"
	case dtypes.Uint32:
		return "uint32_t"
	case dtypes.Uint64:
		return "uint64_t"
	case dtypes.Bool:
		return "bool"
	default:
		exceptions.Panicf("dtype %s has no C++ scalar type", dtype)
		return ""
	}
}

// FloatLiteral formats v as a C++ floating point literal.
func FloatLiteral(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
