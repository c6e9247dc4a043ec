// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cppgemm

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// ActivationType specifies the activation function fused into the store section of
// a generated kernel.
type ActivationType int

const (
	ActivationNone ActivationType = iota
	ActivationGelu
	ActivationRelu
	ActivationSilu
	ActivationTanh
)

// String returns the name of the activation type.
func (a ActivationType) String() string {
	switch a {
	case ActivationNone:
		return "none"
	case ActivationGelu:
		return "gelu"
	case ActivationRelu:
		return "relu"
	case ActivationSilu:
		return "silu"
	case ActivationTanh:
		return "tanh"
	default:
		return "unknown"
	}
}

// CppExpr returns the C++ expression applying the activation to value, computing
// in cppType. ActivationNone returns value unchanged.
func (a ActivationType) CppExpr(value, cppType string) string {
	switch a {
	case ActivationNone:
		return value
	case ActivationGelu:
		return fmt.Sprintf("(%s)0.5 * %s * ((%s)1 + std::erf(%s * (%s)0.7071067811865476))",
			cppType, value, cppType, value, cppType)
	case ActivationRelu:
		return fmt.Sprintf("std::max(%s, (%s)0)", value, cppType)
	case ActivationSilu:
		return fmt.Sprintf("%s / ((%s)1 + std::exp(-%s))", value, cppType, value)
	case ActivationTanh:
		return fmt.Sprintf("std::tanh(%s)", value)
	default:
		exceptions.Panicf("unknown activation type %d", int(a))
		return ""
	}
}

// ParseActivationType converts an activation name (as accepted on command lines)
// to its ActivationType. Matching is case-insensitive.
func ParseActivationType(name string) (ActivationType, error) {
	lowered := strings.ToLower(name)
	for _, activation := range []ActivationType{
		ActivationNone, ActivationGelu, ActivationRelu, ActivationSilu, ActivationTanh} {
		if activation.String() == lowered {
			return activation, nil
		}
	}
	return ActivationNone, errors.Errorf(
		"unknown activation %q, valid values are none, gelu, relu, silu and tanh", name)
}
