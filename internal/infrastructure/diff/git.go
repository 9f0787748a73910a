package diff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

// GitDiff reads commit diffs from a local checkout.
type GitDiff struct {
	Dir  string
	Exec func(ctx context.Context, dir string, args []string) ([]byte, error)
}

// Compare returns the diff from base to head with renames detected.
func (g GitDiff) Compare(ctx context.Context, base, head string) (*domain.Diff, error) {
	for _, ref := range []string{base, head} {
		if ref == "" || strings.HasPrefix(ref, "-") {
			return nil, fmt.Errorf("invalid git ref %q", ref)
		}
	}
	args := []string{"diff", "--no-color", "--no-ext-diff", "-M", base, head, "--"}
	execFn := g.Exec
	if execFn == nil {
		execFn = runGitOutput
	}
	out, err := execFn(ctx, g.Dir, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: git diff %s %s: %v", application.ErrDiffUnavailable, base, head, err)
	}
	return Parse(bytes.NewReader(out))
}

var _ application.DiffProvider = GitDiff{}

func runGitOutput(ctx context.Context, dir string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return out, err
}
