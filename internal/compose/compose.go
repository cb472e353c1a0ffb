// Package compose runs the bot's container lifecycle through docker compose.
package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Target is a lifecycle operation and the compose arguments it runs.
type Target struct {
	Name  string
	Usage string
	Args  []string
}

// DefaultService is the compose service "shell" opens.
const DefaultService = "bot"

// Targets lists the lifecycle operations in help order.
func Targets(service string) []Target {
	return []Target{
		{Name: "build", Usage: "Build the images", Args: []string{"build"}},
		{Name: "run", Usage: "Start the bot in the background", Args: []string{"up", "-d"}},
		{Name: "stop", Usage: "Stop and remove the containers", Args: []string{"down"}},
		{Name: "restart", Usage: "Restart the containers", Args: []string{"restart"}},
		{Name: "logs", Usage: "Follow the logs", Args: []string{"logs", "-f"}},
		{Name: "status", Usage: "Show container status", Args: []string{"ps"}},
		{Name: "clean", Usage: "Remove containers, volumes and local images", Args: []string{"down", "-v", "--rmi", "local", "--remove-orphans"}},
		{Name: "shell", Usage: "Open a shell in the bot container", Args: []string{"exec", service, "/bin/sh"}},
	}
}

var ErrUnknownTarget = errors.New("unknown target")

// Runner invokes "docker compose" for one compose project.
type Runner struct {
	// Files are passed with -f; none means compose's own lookup.
	Files   []string
	Project string
	Service string
	Dir     string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (r *Runner) service() string {
	if r.Service == "" {
		return DefaultService
	}
	return r.Service
}

func (r *Runner) baseArgs() []string {
	args := []string{"compose"}
	for _, f := range r.Files {
		args = append(args, "-f", f)
	}
	if r.Project != "" {
		args = append(args, "-p", r.Project)
	}
	return args
}

// Command builds the docker invocation for target without running it.
func (r *Runner) Command(ctx context.Context, target string) (*exec.Cmd, error) {
	for _, t := range Targets(r.service()) {
		if t.Name != target {
			continue
		}
		cmd := exec.CommandContext(ctx, "docker", append(r.baseArgs(), t.Args...)...)
		cmd.Dir = r.Dir
		cmd.Env = os.Environ()
		cmd.Stdin = r.Stdin
		cmd.Stdout = r.Stdout
		cmd.Stderr = r.Stderr
		return cmd, nil
	}
	return nil, fmt.Errorf("%q: %w", target, ErrUnknownTarget)
}

// Run runs target with the terminal attached and returns docker's exit code.
// A non-nil error means docker could not be started at all.
func (r *Runner) Run(ctx context.Context, target string) (int, error) {
	cmd, err := r.Command(ctx, target)
	if err != nil {
		return 0, err
	}
	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to run docker compose %s: %w", target, err)
	}
	return 0, nil
}
