package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/keboola/metric-duct/internal/pkg/env"
	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/service/common/servicectx"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/config"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/dependencies"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/service"
)

const appName = "metric-duct"

type rootCommand struct {
	*cobra.Command
	binder *config.Binder
	envs   *env.Map
	config config.Config
	stdout io.Writer
	// procOpts are used by tests to disable signals handling.
	procOpts []servicectx.Option
}

func newRootCommand(stdout, stderr io.Writer, envs *env.Map, procOpts ...servicectx.Option) *cobra.Command {
	root := &rootCommand{envs: envs, stdout: stdout, procOpts: procOpts}
	root.Command = &cobra.Command{
		Use:           appName,
		Short:         "Scheduled extract, transform and load of monitoring metrics.",
		SilenceUsage:  true,
		SilenceErrors: true, // printed by main
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.run(cmd.Context())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	// Configuration flags are shared by all commands
	root.binder = config.NewBinder(root.PersistentFlags())
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		envs := env.LoadDotEnv(ctx, log.NewNopLogger(), root.envs, afero.NewOsFs(), []string{"."})
		cfg, err := root.binder.Bind(ctx, envs)
		if err != nil {
			return err
		}
		root.config = cfg
		return nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the node, it is the default command.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return root.run(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate configuration files and exit.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return root.validate(cmd.Context())
			},
		},
	)

	return root.Command
}

func (r *rootCommand) newLogger() log.Logger {
	return log.NewServiceLogger(r.stdout, r.config.Verbose, log.LogFormat(r.config.LogFormat))
}

// run starts the node and blocks until the process is terminated.
func (r *rootCommand) run(ctx context.Context) error {
	logger := r.newLogger()
	logger.Debugf(ctx, "configuration:\n%s", r.config.Dump())

	proc, err := servicectx.New(ctx, logger, append([]servicectx.Option{servicectx.WithUniqueID(r.config.NodeID)}, r.procOpts...)...)
	if err != nil {
		return err
	}

	if err := r.start(proc, logger); err != nil {
		proc.Shutdown(ctx, err)
		proc.WaitForShutdown()
		return err
	}

	proc.WaitForShutdown()
	return nil
}

func (r *rootCommand) start(proc *servicectx.Process, logger log.Logger) error {
	d, err := dependencies.NewServiceScope(proc.Ctx(), r.config, proc, logger)
	if err != nil {
		return err
	}
	_, err = service.Start(proc.Ctx(), d)
	return err
}

// validate loads configuration files once, etcd is not used.
func (r *rootCommand) validate(ctx context.Context) error {
	logger := r.newLogger()

	cfg := r.config
	cfg.Etcd.Endpoint = ""

	proc, err := servicectx.New(ctx, logger, servicectx.WithoutSignals(), servicectx.WithUniqueID(appName+"-validate"))
	if err != nil {
		return err
	}
	defer func() {
		proc.Shutdown(ctx, nil)
		proc.WaitForShutdown()
	}()

	d, err := dependencies.NewServiceScope(proc.Ctx(), cfg, proc, logger)
	if err != nil {
		return err
	}

	cfgs, err := service.Validate(proc.Ctx(), d)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(r.stdout, "%d configurations are valid\n", len(cfgs))
	return err
}
