package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tastythames/jobdispatch/internal/dispatch"
	"github.com/tastythames/jobdispatch/internal/fault"
	"github.com/tastythames/jobdispatch/internal/filesync"
	"github.com/tastythames/jobdispatch/internal/jobspec"
	"github.com/tastythames/jobdispatch/internal/scheduler"
)

type runHandler struct{ app *App }

func (runHandler) Name() string { return "run" }

func (h runHandler) Command() *cobra.Command {
	var o jobspec.Overrides
	cmd := &cobra.Command{
		Use:   "run <host>",
		Short: "Sync the job to <host> and submit one scheduler job per command",
		Long: `run resolves the job from the manifest and flags, connects once to <host>
(user@host:port or an ssh_config alias), creates ~/jobs/<name>/{data,out},
copies the data files and batch script that changed since the last run, and
submits every command into its own out/<label>/<index> directory.

One line per accepted submission is printed to stdout.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Host = args[0]
			d := dispatch.New(h.app.cfg, h.app.WorkDir, cmd.OutOrStdout())
			if h.app.Opener != nil {
				d.Opener = h.app.Opener
			}
			_, err := d.Run(cmd.Context(), o)
			return err
		},
	}
	jobFlags(cmd.Flags(), &o)
	return cmd
}

type validateHandler struct{ app *App }

func (validateHandler) Name() string { return "validate" }

func (h validateHandler) Command() *cobra.Command {
	var o jobspec.Overrides
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Resolve the job and print it without connecting anywhere",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := jobspec.NewResolver(h.app.WorkDir)
			spec, err := r.Resolve(o)
			if err != nil {
				return err
			}
			schedName := spec.Scheduler
			if schedName == "" {
				schedName = h.app.cfg.Scheduler
			}
			sched, err := scheduler.Lookup(schedName)
			if err != nil {
				return err
			}
			spec.Scheduler = sched.Name()

			patterns, err := filesync.Patterns(r.FS, filepath.Dir(spec.ManifestPath), spec.Exclude)
			if err != nil {
				return err
			}
			if _, err := filesync.New(r.FS, patterns, h.app.cfg.TransferTimeout); err != nil {
				return err
			}
			spec.Exclude = patterns

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			err = enc.Encode(spec)
			if err == nil {
				err = enc.Close()
			}
			return fault.Wrap(fault.ConfigInvalid, err, "encode job")
		},
	}
	jobFlags(cmd.Flags(), &o)
	return cmd
}
