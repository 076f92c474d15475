// Package submit queues one scheduler job per command of a JobSpec, each
// with its own output directory under out/<label>/.
package submit

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tastythames/jobdispatch/internal/fault"
	"github.com/tastythames/jobdispatch/internal/jobspec"
	"github.com/tastythames/jobdispatch/internal/layout"
	"github.com/tastythames/jobdispatch/internal/logging"
	"github.com/tastythames/jobdispatch/internal/records"
	"github.com/tastythames/jobdispatch/internal/remote"
	"github.com/tastythames/jobdispatch/internal/scheduler"
)

// ChecksumTool must exist remotely for incremental sync.
const ChecksumTool = "sha256sum"

// Label names the output group of one invocation: a UTC timestamp with
// microseconds followed by the first eight characters of the session token.
func Label(now time.Time, token string) string {
	if len(token) > 8 {
		token = token[:8]
	}
	label := now.UTC().Format("20060102-150405.000000")
	if token == "" {
		return label
	}
	return label + "-" + token
}

// Width is the number of digits used for output indices of n commands.
// It is never below two.
func Width(n int) int {
	return max(2, len(strconv.Itoa(max(n-1, 0))))
}

type Engine struct {
	Scheduler scheduler.Scheduler
	Store     records.Store
	// Timeout bounds each remote call. Zero leaves the session default.
	Timeout time.Duration
	Now     func() time.Time
}

// CheckTools verifies the scheduler submit tool and the checksum tool are on
// the remote PATH.
func (e *Engine) CheckTools(ctx context.Context, r remote.Runner) error {
	for _, tool := range []string{e.Scheduler.Tool(), ChecksumTool} {
		res, err := e.exec(ctx, r, remote.CommandExists(tool))
		if err != nil {
			return fault.Wrap(fault.HostUnreachable, err, "look up %s", tool)
		}
		if res.ExitStatus != 0 {
			return fault.New(fault.ToolMissing, "%s not found on the remote PATH", tool)
		}
	}
	return nil
}

// Submit queues every command of spec in order. The first failure stops the
// loop; records accepted before it are returned along with the error.
func (e *Engine) Submit(ctx context.Context, r remote.Runner, spec jobspec.JobSpec, l layout.Layout, label string) ([]records.Record, error) {
	log := logging.FromContext(ctx).WithFields(logrus.Fields{
		"job":   spec.JobName,
		"label": label,
	})
	width := Width(len(spec.Commands))

	var out []records.Record
	for i, command := range spec.Commands {
		if err := ctx.Err(); err != nil {
			return out, fault.Wrap(fault.Canceled, err, "before command %d", i)
		}

		dir := l.OutputDir(label, i, width)
		res, err := e.exec(ctx, r, remote.MkdirAll(dir))
		if err == nil {
			err = res.Err()
		}
		if err != nil {
			return out, fault.Wrap(fault.ProvisionFailure, err, "create %s", dir)
		}

		d := scheduler.ForCommand(spec.JobName, l.Script, l.Data, dir, command)
		res, err = e.exec(ctx, r, e.Scheduler.SubmitCommand(d))
		if err == nil {
			err = res.Err()
		}
		if err != nil {
			return out, fault.Wrap(fault.SubmissionFailure, err, "submit command %d (%q)", i, command)
		}
		id, err := e.Scheduler.ParseJobID(res.Stdout)
		if err != nil {
			return out, fault.Wrap(fault.SubmissionFailure, err, "submit command %d (%q)", i, command)
		}

		rec := records.Record{
			Index:       i,
			Command:     command,
			OutputDir:   dir,
			JobID:       id,
			Label:       label,
			SubmittedAt: e.now(),
		}
		if e.Store != nil {
			e.Store.Add(rec)
		}
		out = append(out, rec)

		log.WithFields(logrus.Fields{"index": i, "job_id": id}).Info("submitted")
	}
	return out, nil
}

func (e *Engine) exec(ctx context.Context, r remote.Runner, cmd string) (remote.Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	return r.Exec(ctx, cmd, nil)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
