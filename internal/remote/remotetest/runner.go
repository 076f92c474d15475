// Package remotetest provides a scripted remote.Runner.
package remotetest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/tastythames/jobdispatch/internal/fault"
	"github.com/tastythames/jobdispatch/internal/remote"
)

// Call is one recorded Exec.
type Call struct {
	Cmd   string
	Stdin []byte
}

type rule struct {
	substr string
	res    remote.Result
	err    error
	times  int // 0 means unlimited
}

// Runner answers Exec from rules registered with On. The first rule whose
// substring occurs in the command wins; unmatched commands succeed with
// empty output.
type Runner struct {
	HomeDir string

	mu    sync.Mutex
	rules []*rule
	calls []Call
}

func New(home string) *Runner {
	return &Runner{HomeDir: home}
}

// On registers a response for commands containing substr.
func (r *Runner) On(substr string, res remote.Result, err error) *Runner {
	return r.OnN(substr, 0, res, err)
}

// OnN is On limited to the first n matching commands.
func (r *Runner) OnN(substr string, n int, res remote.Result, err error) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, &rule{substr: substr, res: res, err: err, times: n})
	return r
}

func (r *Runner) Home() string { return r.HomeDir }

func (r *Runner) Exec(ctx context.Context, cmd string, stdin io.Reader) (remote.Result, error) {
	c := Call{Cmd: cmd}
	if stdin != nil {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return remote.Result{}, err
		}
		c.Stdin = b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)

	if err := ctx.Err(); err != nil {
		return remote.Result{}, fault.Wrap(fault.Canceled, err, "remote command")
	}
	for _, rl := range r.rules {
		if rl.times < 0 || !strings.Contains(cmd, rl.substr) {
			continue
		}
		if rl.times > 0 {
			rl.times--
			if rl.times == 0 {
				rl.times = -1
			}
		}
		return rl.res, rl.err
	}
	return remote.Result{}, nil
}

// Calls returns every Exec so far.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Matching returns the commands containing substr.
func (r *Runner) Matching(substr string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if strings.Contains(c.Cmd, substr) {
			out = append(out, c)
		}
	}
	return out
}
