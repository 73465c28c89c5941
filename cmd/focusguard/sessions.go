package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
	"github.com/eliteGoblin/focusd/focus_guard/internal/usecase"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run focus sessions",
}

var (
	sessionDuration time.Duration
	pauseReason     string
	endPercent      int
	historyLimit    int
	historyOffset   int
)

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a focus session",
	Long:  `Starts a focus session. Session blocks apply until it ends or is paused.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			d := sessionDuration
			if d == 0 {
				d = a.cfg.Session.DefaultDuration
			}
			s, err := a.sessions.Start(ctx, a.owner, d)
			if err != nil {
				return err
			}
			fmt.Printf("Focus session started (%s), ends at %s\n", s.Duration, s.EndTime.Local().Format(time.Kitchen))
			return nil
		})
	},
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Take a break",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActiveSession(func(ctx context.Context, a *app, s *domain.FocusSession) error {
			if _, err := a.sessions.Pause(ctx, a.owner, s.ID, pauseReason); err != nil {
				return err
			}
			fmt.Println("On break. Session blocks are lifted until you resume.")
			return nil
		})
	},
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "End the current break",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActiveSession(func(ctx context.Context, a *app, s *domain.FocusSession) error {
			resumed, err := a.sessions.Resume(ctx, a.owner, s.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Back to focus, ends at %s\n", resumed.EndTime.Local().Format(time.Kitchen))
			return nil
		})
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the focus session",
	RunE: func(cmd *cobra.Command, args []string) error {
		var override *int
		if cmd.Flags().Changed("percent") {
			override = &endPercent
		}
		return withActiveSession(func(ctx context.Context, a *app, s *domain.FocusSession) error {
			ended, err := a.sessions.End(ctx, a.owner, s.ID, override)
			if err != nil {
				return err
			}
			fmt.Printf("Session ended at %d%%\n", ended.CompletedPercentage)
			return nil
		})
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			s, err := a.sessions.GetActive(ctx, a.owner)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(s)
			}
			if s == nil {
				fmt.Println("No active focus session")
				return nil
			}
			printSession(*s, a.clock.Now())
			return nil
		})
	},
}

var sessionHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List past sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			history, err := a.sessions.History(ctx, a.owner, historyLimit, historyOffset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(history)
			}
			if len(history) == 0 {
				fmt.Println("No sessions yet")
			}
			for _, s := range history {
				fmt.Printf("%s  %-8s  %3d%%  breaks: %d\n",
					s.StartTime.Local().Format("2006-01-02 15:04"), s.Duration, s.CompletedPercentage, len(s.Breaks))
			}
			return nil
		})
	},
}

func init() {
	sessionStartCmd.Flags().DurationVarP(&sessionDuration, "duration", "d", 0, "Session length (default from config)")
	sessionPauseCmd.Flags().StringVar(&pauseReason, "reason", "", "Why you are taking a break")
	sessionEndCmd.Flags().IntVar(&endPercent, "percent", 0, "Record this completion percentage instead of the computed one")
	sessionHistoryCmd.Flags().IntVar(&historyLimit, "limit", 0, "Page size (default from config)")
	sessionHistoryCmd.Flags().IntVar(&historyOffset, "offset", 0, "Sessions to skip")
	for _, c := range []*cobra.Command{sessionStatusCmd, sessionHistoryCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	}

	sessionCmd.AddCommand(sessionStartCmd, sessionPauseCmd, sessionResumeCmd, sessionEndCmd,
		sessionStatusCmd, sessionHistoryCmd)
}

// withActiveSession resolves the owner's active session before calling fn.
func withActiveSession(fn func(ctx context.Context, a *app, s *domain.FocusSession) error) error {
	return withApp(func(ctx context.Context, a *app) error {
		s, err := a.sessions.GetActive(ctx, a.owner)
		if err != nil {
			return err
		}
		if s == nil {
			return domain.ErrNotActive
		}
		return fn(ctx, a, s)
	})
}

func printSession(s domain.FocusSession, now time.Time) {
	fmt.Println("\n=== Focus Session ===")
	fmt.Printf("Started: %s\n", s.StartTime.Local().Format(time.Kitchen))
	fmt.Printf("Planned: %s\n", s.Duration)
	fmt.Printf("Progress: %d%%\n", usecase.Progress(&s, now))
	if s.IsOnBreak() {
		fmt.Println("Status: ON BREAK")
	} else if remaining := s.EndTime.Sub(now); remaining > 0 {
		fmt.Printf("Remaining: %s\n", remaining.Round(time.Second))
	}
	fmt.Println("=====================")
}
