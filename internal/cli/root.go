// Package cli wires the jobdispatch subcommands onto cobra.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tastythames/jobdispatch/internal/config"
	"github.com/tastythames/jobdispatch/internal/dispatch"
	"github.com/tastythames/jobdispatch/internal/fault"
	"github.com/tastythames/jobdispatch/internal/jobspec"
	"github.com/tastythames/jobdispatch/internal/logging"
)

// App is what the commands share: streams, the working directory and the
// configuration, which persistent flags write into.
type App struct {
	Out     io.Writer
	Err     io.Writer
	WorkDir string
	// Opener overrides how run opens sessions. Nil means SSH.
	Opener dispatch.Opener

	cfg config.Config
}

// NewRootCommand builds the command tree. It fails only when two handlers
// share a name.
func NewRootCommand(app *App) (*cobra.Command, error) {
	app.cfg = config.Load()

	root := &cobra.Command{
		Use:   "jobdispatch",
		Short: "Sync a job to an HPC frontend and submit it to the batch scheduler",
		Long: `jobdispatch reads the jobfile.yaml (or jobfile.hcl) of the current project,
copies its data files and batch script to ~/jobs/<name> on the remote host over
one SSH connection, and submits one scheduler job per declared command.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: app.setup,
	}
	root.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fault.Wrap(fault.UnexpectedArgument, err, "%s", c.CommandPath())
	})

	f := root.PersistentFlags()
	f.StringVar(&app.cfg.LogLevel, "log-level", app.cfg.LogLevel, "Log level (debug, info, warn, error).")
	f.IntVar(&app.cfg.Port, "port", app.cfg.Port, "SSH port when neither the host nor ssh_config names one.")
	f.DurationVar(&app.cfg.ConnectTimeout, "connect-timeout", app.cfg.ConnectTimeout, "Timeout for establishing the SSH connection.")
	f.DurationVar(&app.cfg.CommandTimeout, "command-timeout", app.cfg.CommandTimeout, "Timeout for each remote command.")
	f.DurationVar(&app.cfg.TransferTimeout, "transfer-timeout", app.cfg.TransferTimeout, "Timeout for each file upload.")
	f.StringArrayVar(&app.cfg.IdentityFiles, "identity", app.cfg.IdentityFiles, "Private key file to try (repeatable).")
	f.StringVar(&app.cfg.SSHConfigFile, "ssh-config", app.cfg.SSHConfigFile, "OpenSSH client config to read host aliases from. Empty disables it.")
	f.StringVar(&app.cfg.KnownHostsFile, "known-hosts", app.cfg.KnownHostsFile, "known_hosts file used to verify the host key.")
	f.BoolVar(&app.cfg.InsecureSkipHostKey, "insecure-skip-host-key", app.cfg.InsecureSkipHostKey, "Do not verify the remote host key.")

	reg := NewRegistry()
	for _, h := range []Handler{runHandler{app}, validateHandler{app}} {
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}
	reg.Attach(root)
	return root, nil
}

// Execute runs the command line args. Errors cobra raises on its own, such
// as an unknown subcommand, are classified as UnexpectedArgument.
func Execute(ctx context.Context, app *App, args []string) error {
	root, err := NewRootCommand(app)
	if err != nil {
		return err
	}
	root.SetArgs(args)
	if app.Out != nil {
		root.SetOut(app.Out)
	}
	if app.Err != nil {
		root.SetErr(app.Err)
	}

	err = root.ExecuteContext(ctx)
	if err != nil && fault.KindOf(err) == fault.Unknown {
		return &fault.Error{Kind: fault.UnexpectedArgument, Err: err}
	}
	return err
}

func (a *App) setup(cmd *cobra.Command, _ []string) error {
	if err := a.cfg.Validate(); err != nil {
		return fault.Wrap(fault.ConfigInvalid, err, "flags")
	}
	l, err := logging.New(cmd.ErrOrStderr(), a.cfg.LogLevel)
	if err != nil {
		return fault.Wrap(fault.ConfigInvalid, err, "--log-level")
	}
	if a.WorkDir == "" {
		if a.WorkDir, err = os.Getwd(); err != nil {
			return fault.Wrap(fault.FileMissing, err, "working directory")
		}
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.WithLogger(ctx, logrus.NewEntry(l)))
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return fault.Wrap(fault.UnexpectedArgument, err, "%s", cmd.CommandPath())
		}
		return nil
	}
}

func jobFlags(f *pflag.FlagSet, o *jobspec.Overrides) {
	f.StringVarP(&o.ManifestPath, "file", "f", "", "Manifest to use instead of ./jobfile.yaml.")
	f.StringVarP(&o.JobName, "name", "n", "", "Job name. Defaults to the manifest's job_name, then the project directory name.")
	f.StringVarP(&o.BatchScript, "batch-script", "b", "", "Batch script. Defaults to <name>.sh next to the manifest.")
	f.StringArrayVarP(&o.Commands, "command", "c", nil, "Command to submit (repeatable). Replaces the manifest's job_command.")
	f.StringVar(&o.Scheduler, "scheduler", "", "Batch scheduler on the remote host (slurm, pbs).")
}
