package firmware

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Compiler turns user program source into embedded bytecode.
// The builder calls it exactly once per build, with the ABI version and
// cross-compiler options from the archive metadata.
type Compiler interface {
	Compile(ctx context.Context, source string, abiVersion int, options []string) ([]byte, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(ctx context.Context, source string, abiVersion int, options []string) ([]byte, error)

func (f CompilerFunc) Compile(ctx context.Context, source string, abiVersion int, options []string) ([]byte, error) {
	return f(ctx, source, abiVersion, options)
}

// CommandCompiler invokes an external cross-compiler binary such as
// mpy-cross. The source is written to a temporary file, the command is
// run with the metadata's options, and the produced bytecode file is
// read back.
type CommandCompiler struct {
	// Path is the compiler executable; resolved via PATH when relative
	Path string
}

// Compile implements Compiler.
func (c *CommandCompiler) Compile(ctx context.Context, source string, abiVersion int, options []string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "hubflash-mpy-")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	srcPath := filepath.Join(dir, "__main__.py")
	outPath := filepath.Join(dir, "__main__.mpy")
	if err := os.WriteFile(srcPath, []byte(source), 0o600); err != nil {
		return nil, err
	}

	args := append([]string{}, options...)
	args = append(args, "-o", outPath, srcPath)

	cmd := exec.CommandContext(ctx, c.Path, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", c.Path, err, out)
	}

	return os.ReadFile(outPath)
}
