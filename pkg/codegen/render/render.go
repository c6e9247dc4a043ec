// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package render holds the template expansion helpers shared by the kernel
// generators: an Options bag expanded with text/template, and Hooks, a registry of
// deferred render callbacks keyed by the placeholder strings they later replace.
package render

import (
	"slices"
	"strings"
	"text/template"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Options holds the named values a template is expanded with.
type Options map[string]any

// With returns a copy of the options with the given binding added or replaced.
// The receiver is not changed.
func (o Options) With(name string, value any) Options {
	merged := make(Options, len(o)+1)
	for key, v := range o {
		merged[key] = v
	}
	merged[name] = value
	return merged
}

// funcMap has the arithmetic helpers available to all templates.
var funcMap = template.FuncMap{
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
	"mul": func(a, b int) int { return a * b },
	"div": func(a, b int) int { return a / b },
	"mod": func(a, b int) int { return a % b },
}

// Expand parses the template text and executes it against opts.
//
// Missing bindings are errors: a template that references a name absent from opts
// fails instead of rendering "<no value>".
func Expand(name, text string, opts Options) (string, error) {
	tmpl, err := template.New(name).Funcs(funcMap).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "parsing template %q", name)
	}
	var buf strings.Builder
	if err = tmpl.Execute(&buf, opts); err != nil {
		return "", errors.Wrapf(err, "expanding template %q", name)
	}
	return buf.String(), nil
}

// MustExpand is like Expand, but panics on error. Use for templates whose bindings
// are set by the caller itself.
func MustExpand(name, text string, opts Options) string {
	expanded, err := Expand(name, text, opts)
	if err != nil {
		panic(err)
	}
	return expanded
}

// Hooks is a registry of deferred render callbacks.
//
// A hook is registered under the unique placeholder string it will replace. The
// placeholder is returned by Register so it can be spliced into the output right
// away, and Finalize later substitutes every placeholder with its hook output, in
// registration order.
type Hooks struct {
	order []string
	hooks map[string]func() string
}

// Register associates hook with placeholder and returns the placeholder.
//
// It panics if the placeholder already has a hook: each deferred part of the
// output must be rendered exactly once.
func (h *Hooks) Register(placeholder string, hook func() string) string {
	if h.hooks == nil {
		h.hooks = make(map[string]func() string)
	}
	if _, found := h.hooks[placeholder]; found {
		exceptions.Panicf("render hook for placeholder %q registered twice", placeholder)
	}
	h.hooks[placeholder] = hook
	h.order = append(h.order, placeholder)
	return placeholder
}

// Pending returns the placeholders with registered hooks, in registration order.
func (h *Hooks) Pending() []string {
	return slices.Clone(h.order)
}

// Finalize runs the hooks in registration order, replacing each placeholder in
// rendered with its hook output.
//
// It returns an error if any registered placeholder doesn't appear in rendered:
// that means a deferred part of the output would be silently dropped.
func (h *Hooks) Finalize(rendered string) (string, error) {
	for _, placeholder := range h.order {
		if !strings.Contains(rendered, placeholder) {
			return "", errors.Errorf("placeholder %q was registered but never rendered into the output", placeholder)
		}
		rendered = strings.ReplaceAll(rendered, placeholder, h.hooks[placeholder]())
	}
	return rendered, nil
}
