// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cppgemm_test

import (
	"testing"

	. "github.com/gomlx/kernelgen/pkg/codegen/cppgemm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivationType(t *testing.T) {
	assert.Equal(t, "gelu", ActivationGelu.String())
	assert.Equal(t, "none", ActivationNone.String())

	parsed, err := ParseActivationType("Relu")
	require.NoError(t, err)
	assert.Equal(t, ActivationRelu, parsed)
	parsed, err = ParseActivationType("tanh")
	require.NoError(t, err)
	assert.Equal(t, ActivationTanh, parsed)
	_, err = ParseActivationType("softmax")
	require.ErrorContains(t, err, `unknown activation "softmax"`)
}

func TestActivationCppExpr(t *testing.T) {
	assert.Equal(t, "acc", ActivationNone.CppExpr("acc", "float"))
	assert.Equal(t, "std::max(acc, (float)0)", ActivationRelu.CppExpr("acc", "float"))
	assert.Equal(t, "std::tanh(acc)", ActivationTanh.CppExpr("acc", "float"))
	assert.Equal(t, "acc / ((float)1 + std::exp(-acc))", ActivationSilu.CppExpr("acc", "float"))
	assert.Contains(t, ActivationGelu.CppExpr("acc", "float"), "std::erf")
	require.Panics(t, func() { ActivationType(99).CppExpr("acc", "float") })
}
