package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/conductor-ai/conductor/internal/orchestrator"
	"github.com/conductor-ai/conductor/pkg/models"
)

func newChatCmd() *cobra.Command {
	var contextID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				rt.close(shutdownCtx)
			}()

			sessionID := uuid.New().String()
			fmt.Println("conductor chat - type a message, ctrl-d to exit")

			scanner := bufio.NewScanner(os.Stdin)
			var confirmToken string
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					continue
				}

				events, err := rt.dispatcher.Stream(ctx, orchestrator.Inbound{
					Platform:     "cli",
					PlatformID:   sessionID,
					ContextID:    contextID,
					Text:         text,
					ConfirmToken: confirmToken,
				})
				if err != nil {
					fmt.Fprintln(os.Stderr, "error:", err)
					continue
				}
				confirmToken = renderEvents(events)
			}
		},
	}
	cmd.Flags().StringVar(&contextID, "context", "", "context id (empty uses the default context)")
	return cmd
}

// renderEvents prints the stream and returns a confirmation token when the
// request paused for approval, so the next message can carry it.
func renderEvents(events <-chan *models.AgentEvent) string {
	var token string
	for event := range events {
		switch event.Kind {
		case models.EventThinking:
			fmt.Fprintf(os.Stderr, "… %s\n", event.Thinking.Text)
		case models.EventPlan:
			fmt.Fprintf(os.Stderr, "plan (%d steps):\n", len(event.Plan.Steps))
			for _, step := range event.Plan.Steps {
				fmt.Fprintf(os.Stderr, "  %d. %s %s\n", step.Index+1, step.Kind, step.Target)
			}
		case models.EventStepStart:
			fmt.Fprintf(os.Stderr, "step %d: %s %s\n", event.Step.Index+1, event.Step.Kind, event.Step.Target)
		case models.EventToolOutput:
			fmt.Fprintf(os.Stderr, "  [%s] %d chars\n", event.Tool.Tool, len(event.Tool.Text))
		case models.EventSkillActivity:
			fmt.Fprintf(os.Stderr, "  skill %s: %s %s\n", event.Skill.Skill, event.Skill.Phase, event.Skill.Text)
		case models.EventContent:
			if event.Content.Finish == "" {
				fmt.Print(event.Content.Delta)
			} else {
				fmt.Println()
			}
		case models.EventConfirmationRequired:
			token = event.Confirmation.TokenToConfirm
			fmt.Fprintf(os.Stderr, "tool %q needs approval; send your next message to approve and re-run\n",
				event.Confirmation.Tool)
		case models.EventError:
			fmt.Fprintf(os.Stderr, "error [%s]: %s\n", event.Error.Code, event.Error.Message)
		}
	}
	return token
}
