package toolchain

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandToolchain — entry point по умолчанию: CLI toolchain.
//
//	esmvaltool run --config_file <config> <recipe>
//
// CLI сам создаёт каталог сессии в output_dir. После вызова берётся
// сессия рецепта, которой не было до запуска. Консольный вывод
// дописывается в лог invoker-а.
type CommandToolchain struct {
	Binary string
}

// Process реализует Toolchain.
func (c *CommandToolchain) Process(ctx context.Context, recipeFile string, cfg *UserConfig) (*Session, error) {
	binary := c.Binary
	if binary == "" {
		binary = "esmvaltool"
	}

	before, err := cfg.sessionDirs()
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	var console io.Writer = &out
	if cfg.Log != nil {
		console = io.MultiWriter(cfg.Log, &out)
	}

	cmd := exec.CommandContext(ctx, binary, "run", "--config_file", cfg.File, recipeFile)
	cmd.Dir = cfg.Home
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(cfg.File)
	}
	cmd.Stdout = console
	cmd.Stderr = console

	runErr := cmd.Run()
	s, findErr := cfg.createdSession(before)

	if runErr != nil {
		execErr := &ExecutionError{
			Command:  strings.Join(cmd.Args, " "),
			ExitCode: -1,
			Output:   out.String(),
			Err:      runErr,
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}
		return s, execErr
	}
	if findErr != nil {
		return nil, findErr
	}
	return s, nil
}
