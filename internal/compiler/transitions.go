package compiler

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/retrievalstat/internal/ir"
)

//go:embed schema.cue
var schemaCUE []byte

//go:embed transitions.cue
var defaultTransitionsCUE []byte

// DefaultTransitionsFile is the filename reported for the embedded table.
const DefaultTransitionsFile = "transitions.cue"

// CompileTransitions compiles a CUE transition table into an ir.TransitionTable.
//
// The source must define a `transitions` list; it is unified with the
// embedded schema, so statuses outside the known vocabulary and counted
// values without counters are rejected with their source position.
//
// Example source:
//
//	transitions: [
//		{to: "requested", counted: "requested"},
//		{from: "requested", to: "staged", counted: "staged"},
//	]
func CompileTransitions(src []byte, filename string) (ir.TransitionTable, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	doc := ctx.CompileBytes(src, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema.Unify(doc)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	if !doc.LookupPath(cue.ParsePath("transitions")).Exists() {
		return nil, &CompileError{
			Field:   "transitions",
			Message: "transitions is required",
			Pos:     doc.Pos(),
		}
	}

	list := v.LookupPath(cue.ParsePath("transitions"))
	if err := list.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := list.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	table := ir.TransitionTable{}
	for i := 0; iter.Next(); i++ {
		item := iter.Value()
		key, counted, err := parseTransition(item)
		if err != nil {
			return nil, err
		}

		if _, dup := table[key]; dup {
			return nil, &CompileError{
				Field:   fmt.Sprintf("transitions[%d]", i),
				Message: fmt.Sprintf("duplicate transition %q -> %q", key.From, key.To),
				Pos:     item.Pos(),
			}
		}
		if !counted.IsCounted() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("transitions[%d].counted", i),
				Message: fmt.Sprintf("status %q has no counters", counted),
				Pos:     item.Pos(),
			}
		}
		table[key] = counted
	}

	if len(table) == 0 {
		return nil, &CompileError{
			Field:   "transitions",
			Message: "at least one transition is required",
			Pos:     list.Pos(),
		}
	}

	return table, nil
}

// parseTransition reads one {from?, to, counted} entry.
func parseTransition(item cue.Value) (ir.TransitionKey, ir.Status, error) {
	var key ir.TransitionKey

	if fromVal := item.LookupPath(cue.ParsePath("from")); fromVal.Exists() {
		from, err := fromVal.String()
		if err != nil {
			return key, "", formatCUEError(err)
		}
		key.From = ir.Status(from)
	}

	to, err := item.LookupPath(cue.ParsePath("to")).String()
	if err != nil {
		return key, "", formatCUEError(err)
	}
	key.To = ir.Status(to)

	counted, err := item.LookupPath(cue.ParsePath("counted")).String()
	if err != nil {
		return key, "", formatCUEError(err)
	}

	return key, ir.Status(counted), nil
}

// CompileTransitionsFile compiles the transition table stored at path.
func CompileTransitionsFile(path string) (ir.TransitionTable, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transitions: %w", err)
	}
	return CompileTransitions(src, path)
}

// DefaultTransitions compiles the embedded linear lifecycle table.
// Panics if the embedded table does not compile, which tests rule out.
func DefaultTransitions() ir.TransitionTable {
	table, err := CompileTransitions(defaultTransitionsCUE, DefaultTransitionsFile)
	if err != nil {
		panic(fmt.Sprintf("embedded transition table: %v", err))
	}
	return table
}
