// Package object implements the LiveObjects object model.
//
// This package contains:
//   - Slots and the per-object slot table (fields, methods, parent links)
//   - Prototype objects and their script-facing attribute surface
//   - The method compiler that turns slot source into callables
//   - The registry that owns, orders and indexes every object
//   - The command evaluator used by the interactive and batch front ends
//
// All script code (method bodies, commands, snapshot artifacts) is Starlark.
// Only the compiler and evaluator deal with source text; the rest of the
// package works with starlark.Value payloads.
package object
