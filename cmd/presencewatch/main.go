package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands
func buildRoot() *cobra.Command {
	runFlags := &RunFlags{}
	probeFlags := &ProbeFlags{}
	statusFlags := &StatusFlags{}

	root := createRootCommand()
	root.AddCommand(
		createRunCommand(runFlags),
		createProbeCommand(probeFlags),
		createCheckCommand(),
		createStatusCommand(statusFlags),
		createVersionCommand(),
	)
	return root
}

// createRootCommand creates the root command
func createRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presencewatch",
		Short: "Start and stop an application based on device presence",
		Long: `Presencewatch polls a device on the local network by ARP. While the device
answers it keeps an application running; after a number of consecutive
missed polls it stops the application.

Examples:
  presencewatch run config.toml
  presencewatch probe 192.168.1.24
  presencewatch check Discord
  presencewatch status --api-url=http://127.0.0.1:8080/api`,
		SilenceUsage: true,
	}
}

// createRunCommand creates the run subcommand
func createRunCommand(flags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [config.toml]",
		Short: "Run the presence watcher",
		Long: `Run the presence watcher in the foreground until SIGINT or SIGTERM.
Settings are read from the config file and PRESENCEWATCH_* environment variables.

Examples:
  presencewatch run config.toml
  PRESENCEWATCH_DEVICE_ADDRESS=192.168.1.24 PRESENCEWATCH_APP_PATH=/usr/bin/discord presencewatch run
  presencewatch run config.toml --daemonize --pidfile=/run/presencewatch.pid --logfile=/var/log/presencewatch.log`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				flags.ConfigPath = args[0]
			}
			if flags.Daemonize {
				return daemonize(flags.PidFile, flags.LogFile)
			}
			return runWatch(cmd.Context(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().BoolVar(&flags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&flags.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

// createProbeCommand creates the probe subcommand
func createProbeCommand(flags *ProbeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <ip>",
		Short: "Probe a device once and print present or absent",
		Long: `Send one ARP request to the device and print the result.
ARP needs raw socket access (root or CAP_NET_RAW on Linux).

Examples:
  presencewatch probe 192.168.1.24
  presencewatch probe 192.168.1.24 --interface=eth0 --timeout=1s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context(), cmd.OutOrStdout(), args[0], *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Interface, "interface", "", "network interface (default: picked from the address)")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 3*time.Second, "probe timeout")
	return cmd
}

// createCheckCommand creates the check subcommand
func createCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <process-name>",
		Short: "Tell whether a process with the given name is running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

// createStatusCommand creates the status subcommand
func createStatusCommand(flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running daemon",
		Long: `Query the status API of a running daemon.

Examples:
  presencewatch status
  presencewatch status --output=yaml
  presencewatch status --history=20 --api-url=https://host:8443/api --ca-cert=ca.pem`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "http://127.0.0.1:8080/api", "daemon API URL")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "json", "output format: json or yaml")
	cmd.Flags().IntVar(&flags.History, "history", 0, "also show the N most recent history events")
	cmd.Flags().StringVar(&flags.CACert, "ca-cert", "", "CA certificate for https API URLs")
	cmd.Flags().BoolVar(&flags.Insecure, "insecure", false, "skip TLS verification")
	return cmd
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "presencewatch", version)
		},
	}
}
