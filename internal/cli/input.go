package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/roach88/retrievalstat/internal/compiler"
	"github.com/roach88/retrievalstat/internal/ir"
	"github.com/roach88/retrievalstat/internal/stream"
)

// readBatch decodes the batch at path; "-" reads stdin.
// It returns the ExitError to report on failure.
func readBatch(f *OutputFormatter, path string, stdin io.Reader) (*ir.Batch, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeReadInput, fmt.Sprintf("reading batch %s", path), err)
	}

	batch, err := stream.DecodeBytes(data)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDecode, "decoding batch", err)
	}
	return batch, nil
}

// loadTransitions compiles the transition table from path, or the embedded
// default when path is empty.
func loadTransitions(f *OutputFormatter, path string) (ir.TransitionTable, string, error) {
	if path == "" {
		return compiler.DefaultTransitions(), compiler.DefaultTransitionsFile, nil
	}
	table, err := compiler.CompileTransitionsFile(path)
	if err != nil {
		return nil, path, f.Fail(ExitCommandError, ErrCodeTransitions, "compiling transition table", err)
	}
	return table, path, nil
}
