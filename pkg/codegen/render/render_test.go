// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package render

import (
	"fmt"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	opts := Options{"name": "acc", "lanes": 16}
	got, err := Expand("decl", `float {{.name}}[{{.lanes}}];`, opts)
	require.NoError(t, err)
	assert.Equal(t, "float acc[16];", got)

	// Arithmetic helpers.
	got, err = Expand("arith", `{{mul .lanes 2}} {{add .lanes 1}} {{div .lanes 4}} {{mod .lanes 5}} {{sub .lanes 6}}`, opts)
	require.NoError(t, err)
	assert.Equal(t, "32 17 4 1 10", got)
}

func TestExpandMissingBinding(t *testing.T) {
	_, err := Expand("decl", `{{.name}} {{.missing}}`, Options{"name": "acc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	// Broken template text is reported as a parse error.
	_, err = Expand("broken", `{{.name`, Options{"name": "acc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing template")

	assert.Panics(t, func() { MustExpand("decl", `{{.missing}}`, Options{}) })
}

func TestOptionsWith(t *testing.T) {
	opts := Options{"num_threads": 8}
	single := opts.With("num_threads", 1)
	assert.Equal(t, 1, single["num_threads"])
	assert.Equal(t, 8, opts["num_threads"])
	withExtra := opts.With("alpha", 1.5)
	assert.Equal(t, 1.5, withExtra["alpha"])
	assert.NotContains(t, opts, "alpha")
}

func TestHooks(t *testing.T) {
	var hooks Hooks
	calls := 0
	placeholder := hooks.Register("<CALL_0>", func() string {
		calls++
		return fmt.Sprintf("call(%d)", calls)
	})
	assert.Equal(t, "<CALL_0>", placeholder)
	hooks.Register("<CALL_1>", func() string { return "other()" })
	assert.Equal(t, []string{"<CALL_0>", "<CALL_1>"}, hooks.Pending())

	// Hooks are deferred: nothing runs until Finalize.
	assert.Zero(t, calls)
	got, err := hooks.Finalize("a: <CALL_0>; b: <CALL_1>; again: <CALL_0>")
	require.NoError(t, err)
	assert.Equal(t, "a: call(1); b: other(); again: call(1)", got)
	assert.Equal(t, 1, calls)
}

func TestHooksDuplicateRegistration(t *testing.T) {
	var hooks Hooks
	hooks.Register("<CALL_0>", func() string { return "" })
	err := exceptions.TryCatch[error](func() {
		hooks.Register("<CALL_0>", func() string { return "" })
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registered twice")
}

func TestHooksUnrenderedPlaceholder(t *testing.T) {
	var hooks Hooks
	hooks.Register("<CALL_0>", func() string { return "x" })
	hooks.Register("<CALL_1>", func() string { return "y" })
	_, err := hooks.Finalize("only <CALL_0> made it in")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "<CALL_1>")
	assert.Contains(t, err.Error(), "never rendered")
}
