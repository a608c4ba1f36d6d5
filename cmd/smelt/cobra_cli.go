package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smeltrun/smelt/internal/client"
	"github.com/smeltrun/smelt/internal/config"
	"github.com/smeltrun/smelt/internal/executor"
	"github.com/smeltrun/smelt/internal/logging"
	"github.com/smeltrun/smelt/internal/protocol"
	"github.com/smeltrun/smelt/internal/service"
)

var (
	flagDebug       bool
	flagCommandFile string
	flagDocker      bool
	flagDockerImage string
	flagListenAddr  string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "smelt",
		Short: "smelt runs a declarative graph of build, stimulus, and test commands",
		Long: `smelt executes a declaratively defined graph of commands, memoizing shared
dependencies within one invocation and skipping dependents of a failed
command rather than running them.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = logging.New(flagDebug)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&flagCommandFile, "commands", "c", "smelt.yaml", "path to the command-set YAML document")
	root.PersistentFlags().BoolVar(&flagDocker, "docker", false, "run commands inside containers instead of the host")
	root.PersistentFlags().StringVar(&flagDockerImage, "docker-image", "", "image to use when --docker is set")

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newGetConfigCmd(),
	)
	return root
}

func newExecutor(cfg protocol.ConfigureSmelt) (executor.Executor, error) {
	if flagDocker {
		cfg.InitExecutor = protocol.InitExecutor{Docker: &protocol.DockerExecutorConfig{
			ImageName:             flagDockerImage,
			RunMode:               protocol.RunModeLocal,
			ArtifactBindDirectory: "/tmp/artifacts",
		}}
	}
	if cfg.InitExecutor.Docker != nil {
		return executor.NewDocker(*cfg.InitExecutor.Docker, cfg.Silent, cfg.ProfCfg)
	}
	return executor.NewLocal(cfg.Silent, cfg.ProfCfg), nil
}

func newInProcessService(root string) (*service.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.SmeltRoot = root

	exec, err := newExecutor(cfg)
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}

	return service.New(cfg, exec), nil
}

func readCommandFile() (string, error) {
	data, err := os.ReadFile(flagCommandFile)
	if err != nil {
		return "", fmt.Errorf("read command set %q: %w", flagCommandFile, err)
	}
	return string(data), nil
}

func newRunCmd() *cobra.Command {
	var typeFlag string
	cmd := &cobra.Command{
		Use:   "run [command names...]",
		Short: "run one or more commands and their dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && typeFlag == "" {
				return fmt.Errorf("specify at least one command name or --type")
			}

			root, err := os.Getwd()
			if err != nil {
				return err
			}
			svc, err := newInProcessService(root)
			if err != nil {
				return err
			}
			c := client.NewInProcess(svc)

			content, err := readCommandFile()
			if err != nil {
				return err
			}
			setResp := c.Do(cmd.Context(), protocol.SendCommandsCommand(content))
			if setResp.CommandSettingFailed != nil {
				return fmt.Errorf("command set failed validation (%d error(s))", setResp.CommandSettingFailed.Count)
			}

			var runResp protocol.ClientResp
			switch {
			case typeFlag != "":
				runResp = c.Do(cmd.Context(), protocol.ExecuteTypeCommand(typeFlag))
			case len(args) == 1:
				runResp = c.Do(cmd.Context(), protocol.ExecuteCommandCommand(args[0]))
			default:
				runResp = c.Do(cmd.Context(), protocol.ExecuteManyCommand(args))
			}
			if runResp.Error != nil {
				return fmt.Errorf("%s", runResp.Error.ErrorPayload)
			}

			return streamToStdout(cmd.Context(), c, runResp.Invoked.TraceID)
		},
	}
	cmd.Flags().StringVar(&typeFlag, "type", "", "run every command of this target_type instead of naming commands")
	return cmd
}

// streamToStdout prints each event's human-readable line and returns a
// non-nil error if any command in the invocation finished with a non-zero
// exit code.
func streamToStdout(ctx context.Context, c *client.InProcess, traceID string) error {
	failed := false
	for e := range c.Stream(ctx, traceID) {
		switch {
		case e.Command != nil && e.Command.Stdout != nil:
			fmt.Printf("[%s] %s\n", e.Command.CommandRef, e.Command.Stdout.Output)
		case e.Command != nil && e.Command.Started != nil:
			fmt.Printf("[%s] started\n", e.Command.CommandRef)
		case e.Command != nil && e.Command.Skipped != nil:
			fmt.Printf("[%s] skipped\n", e.Command.CommandRef)
		case e.Command != nil && e.Command.Finished != nil:
			code := e.Command.Finished.Outputs.ExitCode
			fmt.Printf("[%s] finished (exit %d)\n", e.Command.CommandRef, code)
			if code != 0 {
				failed = true
			}
		case e.Error != nil:
			fmt.Fprintf(os.Stderr, "error: %s\n", e.Error.ErrorPayload)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("one or more commands failed")
	}
	return nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the command graph service over a TCP listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}
			svc, err := newInProcessService(root)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", flagListenAddr)
			if err != nil {
				return fmt.Errorf("listen on %q: %w", flagListenAddr, err)
			}
			defer ln.Close()
			fmt.Printf("smelt serving on %s\n", ln.Addr())

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			go func() {
				<-ctx.Done()
				ln.Close()
			}()

			for {
				conn, err := ln.Accept()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				go func() {
					defer conn.Close()
					_ = service.ServeConn(ctx, conn, svc)
				}()
			}
		},
	}
	cmd.Flags().StringVar(&flagListenAddr, "listen", "127.0.0.1:7777", "address to listen on")
	return cmd
}

func newGetConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-config",
		Short: "print the effective configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}
