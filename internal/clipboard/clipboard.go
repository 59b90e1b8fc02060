package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
)

var ErrToolNotFound = errors.New("clipboard tool not found")

type Command struct {
	Path string
	Args []string
}

type candidate struct {
	name string
	args []string
}

var linuxCandidates = []candidate{
	{name: "wl-copy"},
	{name: "xclip", args: []string{"-selection", "clipboard"}},
	{name: "xsel", args: []string{"--clipboard", "--input"}},
}

func SelectCommand(goos string, lookPath func(string) (string, error)) (Command, error) {
	var candidates []candidate
	switch goos {
	case "darwin":
		candidates = []candidate{{name: "pbcopy"}}
	case "linux", "freebsd", "openbsd", "netbsd":
		candidates = linuxCandidates
	case "windows":
		candidates = []candidate{{name: "clip"}}
	}
	for _, c := range candidates {
		if path, err := lookPath(c.name); err == nil {
			return Command{Path: path, Args: c.args}, nil
		}
	}
	return Command{}, ErrToolNotFound
}

func Copy(ctx context.Context, text string) error {
	cmdDef, err := SelectCommand(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}
	return run(ctx, cmdDef, text)
}

func run(ctx context.Context, cmdDef Command, text string) error {
	cmd := exec.CommandContext(ctx, cmdDef.Path, cmdDef.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("clipboard stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start clipboard command: %w", err)
	}

	if _, err := stdin.Write([]byte(text)); err != nil {
		_ = stdin.Close()
		_ = cmd.Wait()
		return fmt.Errorf("write clipboard data: %w", err)
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("clipboard command failed: %w", err)
	}
	return nil
}
