package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Earn temporary access to a permanently blocked site",
}

var promptAnswer bool

var unlockChallengeCmd = &cobra.Command{
	Use:   "challenge <url>",
	Short: "Request a challenge for a permanently blocked site",
	Long: `Requests a challenge. With --prompt the answer is read from stdin
right away; otherwise answer later with 'unlock answer'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			pc, err := a.orch.RequestChallenge(ctx, a.owner, args[0])
			if err != nil {
				return err
			}
			printChallenge(pc)
			if !promptAnswer {
				fmt.Printf("\nAnswer with: focusguard unlock answer %s %s <answer>\n", pc.ID, args[0])
				return nil
			}

			fmt.Print("\nYour answer: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read answer: %w", err)
			}
			return submitAnswer(ctx, a, pc.ID, args[0], strings.TrimSpace(line))
		})
	},
}

var unlockAnswerCmd = &cobra.Command{
	Use:   "answer <challenge-id> <url> <answer...>",
	Short: "Answer an issued challenge",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			return submitAnswer(ctx, a, args[0], args[1], strings.Join(args[2:], " "))
		})
	},
}

var unlockSkipCmd = &cobra.Command{
	Use:   "skip <challenge-id>",
	Short: "Give up on an issued challenge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.orch.Skip(ctx, a.owner, args[0]); err != nil {
				return err
			}
			fmt.Println("Challenge skipped (counted as a failed attempt)")
			return nil
		})
	},
}

var unlockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active temporary unlocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			active := a.orch.ActiveUnlocks(ctx, a.owner)
			if jsonOutput {
				return printJSON(active)
			}
			if len(active) == 0 {
				fmt.Println("No active unlocks")
			}
			now := a.clock.Now()
			for _, u := range active {
				fmt.Printf("%s  %s left\n", u.NormalizedURL, u.UnlockUntil.Sub(now).Round(time.Second))
			}
			return nil
		})
	},
}

var unlockRelockCmd = &cobra.Command{
	Use:   "relock <url>",
	Short: "End a temporary unlock early",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			a.orch.Relock(ctx, a.owner, args[0])
			fmt.Printf("%s is blocked again\n", args[0])
			return nil
		})
	},
}

var unlockStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show challenge statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			stats, err := a.challenges.Stats(ctx, a.owner)
			if err != nil {
				return err
			}
			recommended, err := a.challenges.RecommendedDifficulty(ctx, a.owner)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]any{"stats": stats, "recommended_difficulty": recommended})
			}
			fmt.Printf("Attempts: %d (%d successful, %.0f%%)\n",
				stats.TotalAttempts, stats.SuccessfulAttempts, stats.SuccessRate)
			fmt.Printf("Next difficulty: %s\n", recommended)
			return nil
		})
	},
}

func init() {
	unlockChallengeCmd.Flags().BoolVar(&promptAnswer, "prompt", false, "Read the answer from stdin")
	for _, c := range []*cobra.Command{unlockListCmd, unlockStatsCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	}

	unlockCmd.AddCommand(unlockChallengeCmd, unlockAnswerCmd, unlockSkipCmd,
		unlockListCmd, unlockRelockCmd, unlockStatsCmd)
}

func submitAnswer(ctx context.Context, a *app, challengeID, url, answer string) error {
	result, err := a.orch.SubmitAnswer(ctx, a.owner, challengeID, url, answer)
	if err != nil {
		return err
	}
	switch {
	case result.Expired:
		fmt.Println("Too slow: the time limit passed. Request a new challenge.")
	case result.IsCorrect:
		fmt.Printf("Correct! %s is unlocked until %s\n", url, result.UnlockUntil.Local().Format(time.Kitchen))
	default:
		fmt.Println("Wrong answer. Request a new challenge to try again.")
	}
	return nil
}

func printChallenge(pc domain.PublicChallenge) {
	fmt.Printf("\n[%s, %s]\n%s\n", pc.Type, pc.Difficulty, pc.Question)
	for i, opt := range pc.Options {
		fmt.Printf("  %d) %s\n", i+1, opt)
	}
	if pc.TimeLimitSeconds > 0 {
		fmt.Printf("Time limit: %ds\n", pc.TimeLimitSeconds)
	}
}
