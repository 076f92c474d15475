// Package layout computes and provisions the remote directory tree of a job:
//
//	<home>/jobs/<job>/
//	    data/             synchronized inputs
//	    out/<label>/<NN>/ one directory per submitted command
//	    <job>.sh          batch script
//
// The tree is shared by every invocation for the same job name and is never
// cleared.
package layout

import (
	"context"
	"fmt"

	"github.com/tastythames/jobdispatch/internal/fault"
	"github.com/tastythames/jobdispatch/internal/logging"
	"github.com/tastythames/jobdispatch/internal/remote"
)

// JobsDir is the directory under the remote home holding every job.
const JobsDir = "jobs"

type Layout struct {
	Root   string
	Data   string
	Out    string
	Script string
}

func For(home, job string) Layout {
	root := remote.RemotePath(home, JobsDir, job)
	return Layout{
		Root:   root,
		Data:   remote.RemotePath(root, "data"),
		Out:    remote.RemotePath(root, "out"),
		Script: remote.RemotePath(root, job+".sh"),
	}
}

// Group is the directory shared by every command of one invocation.
func (l Layout) Group(label string) string {
	return remote.RemotePath(l.Out, label)
}

// OutputDir is out/<label>/<index padded to width>.
func (l Layout) OutputDir(label string, index, width int) string {
	return remote.RemotePath(l.Group(label), fmt.Sprintf("%0*d", width, index))
}

// Ensure creates the layout of job under the runner's home. It is safe to
// call when the layout already exists.
func Ensure(ctx context.Context, r remote.Runner, job string) (Layout, error) {
	l := For(r.Home(), job)

	res, err := r.Exec(ctx, remote.MkdirAll(l.Data, l.Out), nil)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return Layout{}, fault.Wrap(fault.ProvisionFailure, err, "create %s", l.Root)
	}

	logging.FromContext(ctx).WithField("root", l.Root).Debug("layout ready")
	return l, nil
}
