package main

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"avrbridge/internal/config"
	"avrbridge/internal/fuse"
	"avrbridge/internal/history"
	"avrbridge/internal/invoke"
	"avrbridge/internal/tools"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version <tool>",
		Short: "Print the name and version of a programmer tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			invoker, cleanup, err := newInvoker(cfg, args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signalContext()
			defer stop()

			v, err := invoker.Version(ctx, cfg)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices <tool>",
		Short: "List the device ids a programmer tool supports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			invoker, cleanup, err := newInvoker(cfg, args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signalContext()
			defer stop()

			devices, err := invoker.SupportedDevices(ctx, cfg)
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(devices))
			for id := range devices {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var cwd string

	cmd := &cobra.Command{
		Use:   "run <tool> [-- <tool arguments>]",
		Short: "Run a programmer tool with arbitrary arguments",
		Long:  "Runs the tool with the given arguments, mirroring all output to the terminal. The configured USB invocation delay and output failure detection apply.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			invoker, cleanup, err := newInvoker(cfg, args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signalContext()
			defer stop()

			res, err := invoker.RunWithOptions(ctx, cfg, args[1:], invoke.RunOptions{
				WorkingDir:   cwd,
				ForceConsole: true,
			})
			if err != nil {
				return err
			}
			if res.ExitCode != 0 {
				logger.Warn("tool exited with non-zero status", "tool", args[0], "code", res.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for the tool (must exist)")
	return cmd
}

// fuseByteNames are the avrdude memory names read by the fuses command, in
// container index order.
var fuseByteNames = []string{"lfuse", "hfuse", "efuse"}

// hexBytePattern matches the raw value lines avrdude prints when a fuse is
// read to stdout ("-U lfuse:r:-:h" style).
var hexBytePattern = regexp.MustCompile(`^0x[0-9a-fA-F]{1,2}$`)

func fusesCmd() *cobra.Command {
	var programmer, port string

	cmd := &cobra.Command{
		Use:   "fuses <mcu>",
		Short: "Read the fuse bytes of a device with avrdude",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			invoker, cleanup, err := newInvoker(cfg, tools.AvrdudeID)
			if err != nil {
				return err
			}
			defer cleanup()

			mcu := args[0]
			toolArgs := []string{"-p", mcu}
			if programmer != "" {
				toolArgs = append(toolArgs, "-c", programmer)
			}
			if port != "" {
				toolArgs = append(toolArgs, "-P", port)
			}
			for _, name := range fuseByteNames {
				toolArgs = append(toolArgs, "-U", name+":r:-:h")
			}

			ctx, stop := signalContext()
			defer stop()

			lines, err := invoker.Run(ctx, cfg, toolArgs...)
			if err != nil {
				return err
			}

			values := fuse.New(mcu, len(fuseByteNames))
			index := 0
			for _, line := range lines {
				line = strings.TrimSpace(line)
				if !hexBytePattern.MatchString(line) {
					continue
				}
				if index >= values.Count() {
					break
				}
				v, err := strconv.ParseInt(line, 0, 32)
				if err != nil {
					continue
				}
				if err := values.Set(index, int(v)); err != nil {
					return err
				}
				index++
			}

			for i, name := range fuseByteNames {
				v, err := values.Get(i)
				if err != nil {
					return err
				}
				if v == fuse.Unset {
					fmt.Printf("%s: (not read)\n", name)
					continue
				}
				fmt.Printf("%s: 0x%02x\n", name, v)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&programmer, "programmer", "", "programmer id (avrdude -c)")
	cmd.Flags().StringVar(&port, "port", "", "programmer port (avrdude -P)")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tool invocations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := history.NewStore(config.ExpandPath(cfg.Attribute("history.path")), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signalContext()
			defer stop()

			recent, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			for _, inv := range recent {
				fmt.Printf("%s  %-8s %-24s exit=%d %6dms  %s %s\n",
					inv.CreatedAt.Format("2006-01-02 15:04:05"),
					inv.ToolID, inv.Outcome, inv.ExitCode, inv.Duration.Milliseconds(),
					inv.Command, strings.Join(inv.Args, " "))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of invocations to show")
	return cmd
}
