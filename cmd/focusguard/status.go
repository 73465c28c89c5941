package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/focus_guard/internal/config"
	"github.com/eliteGoblin/focusd/focus_guard/internal/daemon"
	"github.com/eliteGoblin/focusd/focus_guard/internal/infra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scheduler and blocking status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		st, err := daemon.CheckStatus(a.store, infra.NewProcessManager())
		if err != nil {
			return fmt.Errorf("failed to read daemon registration: %w", err)
		}
		bc := a.blocks.BlockingContext(ctx, a.owner)

		fmt.Println("\n=== focusguard Status ===")
		switch {
		case st.Running:
			fmt.Printf("Scheduler: RUNNING (pid %d, %s)\n", st.PID, st.AppVersion)
			fmt.Printf("Started: %s\n", st.StartedAt.Local().Format(time.RFC3339))
			if !st.LastHeartbeat.IsZero() {
				fmt.Printf("Last heartbeat: %s ago\n", time.Since(st.LastHeartbeat).Round(time.Second))
			}
		case st.Registered:
			fmt.Printf("Scheduler: NOT RUNNING (stale registration, pid %d)\n", st.PID)
		default:
			fmt.Println("Scheduler: NOT RUNNING")
			fmt.Println("           Run 'focusguard daemon' or 'focusguard serve' to start it.")
		}

		fmt.Printf("\nOwner: %s\n", a.owner)
		switch {
		case bc.IsOnBreak:
			fmt.Println("Focus session: ON BREAK")
		case bc.HasActiveSession:
			fmt.Printf("Focus session: ACTIVE (%s left)\n", bc.SessionTimeRemaining.Round(time.Second))
		default:
			fmt.Println("Focus session: none")
		}
		fmt.Printf("Blocks: %d (%d permanent, %d session)\n", bc.TotalBlocks, bc.PermanentBlocks, bc.SessionBlocks)
		if n := len(a.orch.ActiveUnlocks(ctx, a.owner)); n > 0 {
			fmt.Printf("Temporary unlocks: %d\n", n)
		}
		fmt.Println("=========================")
		return nil
	})
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return yaml.NewEncoder(os.Stdout).Encode(cfg)
	},
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
}
