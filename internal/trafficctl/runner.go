package trafficctl

import (
	"context"
	"fmt"
	"log"
	"os/exec"
)

// runner executes one subprocess invocation. Abstracted so tests can
// substitute a fake without actually programming the kernel.
type runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// bestEffort runs a command and logs but discards failure, matching
// the original's `let _ = Command::new(...).output();` deletion
// calls (spec §4.F: "deletion calls are best-effort").
func bestEffort(ctx context.Context, r runner, name string, args ...string) {
	if err := r.Run(ctx, name, args...); err != nil {
		log.Printf("trafficctl: best-effort command failed, ignoring: %s %v: %v", name, args, err)
	}
}

// mandatory runs a command and surfaces failure to the caller.
func mandatory(ctx context.Context, r runner, name string, args ...string) error {
	if err := r.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("%s %v: %w", name, args, err)
	}
	return nil
}
