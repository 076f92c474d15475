// Package dispatch runs one job dispatch from start to finish: resolve the
// job, open the remote session, provision, sync, submit, report, close.
package dispatch

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tastythames/jobdispatch/internal/config"
	"github.com/tastythames/jobdispatch/internal/fault"
	"github.com/tastythames/jobdispatch/internal/filesync"
	"github.com/tastythames/jobdispatch/internal/jobspec"
	"github.com/tastythames/jobdispatch/internal/layout"
	"github.com/tastythames/jobdispatch/internal/logging"
	"github.com/tastythames/jobdispatch/internal/records"
	"github.com/tastythames/jobdispatch/internal/remote"
	"github.com/tastythames/jobdispatch/internal/report"
	"github.com/tastythames/jobdispatch/internal/scheduler"
	"github.com/tastythames/jobdispatch/internal/submit"
)

// ScriptMode is the mode of the batch script on the remote host.
const ScriptMode = 0o755

// Session is the part of remote.Session the dispatcher owns.
type Session interface {
	remote.Runner
	Token() string
	Target() remote.Target
	Close() error
}

type Opener interface {
	Open(ctx context.Context, cfg config.Config, host string) (Session, error)
}

type OpenerFunc func(ctx context.Context, cfg config.Config, host string) (Session, error)

func (f OpenerFunc) Open(ctx context.Context, cfg config.Config, host string) (Session, error) {
	return f(ctx, cfg, host)
}

// SSH opens real sessions with remote.Open.
var SSH Opener = OpenerFunc(func(ctx context.Context, cfg config.Config, host string) (Session, error) {
	s, err := remote.Open(ctx, cfg, host)
	if err != nil {
		return nil, err
	}
	return s, nil
})

// Result is what a dispatch did.
type Result struct {
	Spec    jobspec.JobSpec
	Layout  layout.Layout
	Label   string
	Sync    filesync.Stats
	Records []records.Record
}

type Dispatcher struct {
	Config   config.Config
	Resolver *jobspec.Resolver
	Opener   Opener
	Now      func() time.Time
	// Out receives the report. Nil discards it.
	Out io.Writer
}

// New returns a Dispatcher using real SSH sessions and the local filesystem.
func New(cfg config.Config, workDir string, out io.Writer) *Dispatcher {
	return &Dispatcher{
		Config:   cfg,
		Resolver: jobspec.NewResolver(workDir),
		Opener:   SSH,
		Now:      time.Now,
		Out:      out,
	}
}

// Run performs the dispatch. Every local check happens before the session
// is opened; once open, the session is closed exactly once on every path.
// Records accepted before a failure are reported and returned with the error.
// The report covers this call only, so a Dispatcher can be reused.
func (d *Dispatcher) Run(ctx context.Context, o jobspec.Overrides) (Result, error) {
	var res Result
	log := logging.FromContext(ctx)

	spec, err := d.Resolver.Resolve(o)
	if err != nil {
		return res, err
	}
	res.Spec = spec
	if spec.RemoteHost == "" {
		return res, fault.New(fault.ConfigInvalid, "no remote host given")
	}

	schedName := spec.Scheduler
	if schedName == "" {
		schedName = d.Config.Scheduler
	}
	sched, err := scheduler.Lookup(schedName)
	if err != nil {
		return res, err
	}

	patterns, err := filesync.Patterns(d.Resolver.FS, filepath.Dir(spec.ManifestPath), spec.Exclude)
	if err != nil {
		return res, err
	}
	syncer, err := filesync.New(d.Resolver.FS, patterns, d.Config.TransferTimeout)
	if err != nil {
		return res, err
	}

	log = log.WithFields(logrus.Fields{"job": spec.JobName, "host": spec.RemoteHost})
	ctx = logging.WithLogger(ctx, log)
	log.WithFields(logrus.Fields{
		"manifest":  spec.ManifestPath,
		"commands":  len(spec.Commands),
		"scheduler": sched.Name(),
	}).Debug("job resolved")

	sess, err := d.Opener.Open(ctx, d.Config, spec.RemoteHost)
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.WithError(cerr).Warn("close session")
		}
	}()
	syncer.Token = sess.Token()
	log.WithFields(logrus.Fields{"target": sess.Target().String(), "home": sess.Home()}).Info("connected")

	l, err := layout.Ensure(ctx, sess, spec.JobName)
	if err != nil {
		return res, err
	}
	res.Layout = l

	store := records.NewMemStore()
	engine := &submit.Engine{Scheduler: sched, Store: store, Now: d.Now}
	if err := engine.CheckTools(ctx, sess); err != nil {
		return res, err
	}

	st, err := syncer.SyncData(ctx, sess, spec.DataFiles, l.Data)
	if err != nil {
		return res, err
	}
	res.Sync = st
	st, err = syncer.SyncFile(ctx, sess, spec.BatchScript, l.Script, ScriptMode)
	res.Sync.Add(st)
	if err != nil {
		return res, err
	}

	res.Label = submit.Label(d.now(), sess.Token())
	res.Records, err = engine.Submit(ctx, sess, spec, l, res.Label)

	if len(res.Records) > 0 || err == nil {
		meta := report.Meta{
			Job:       spec.JobName,
			Host:      spec.RemoteHost,
			Scheduler: sched.Name(),
			Label:     res.Label,
			Width:     submit.Width(len(spec.Commands)),
			Sync:      res.Sync,
		}
		if werr := d.report(store, meta); werr != nil {
			log.WithError(werr).Warn("write report")
		}
	}
	return res, err
}

func (d *Dispatcher) report(s records.Store, m report.Meta) error {
	if d.Out == nil {
		return nil
	}
	return report.NewRenderer(s).Write(d.Out, m)
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
