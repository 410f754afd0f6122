package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/common/config"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/events/bus"
	"github.com/papertrans/papertrans/internal/workflow"
)

// newTranslateCommand returns the translate command: one server-less workflow
// run with progress printed from a bus subscription.
func newTranslateCommand(cfg **config.Config, log **logger.Logger) *cobra.Command {
	var (
		enableOCR bool
		output    string
	)

	cmd := &cobra.Command{
		Use:   "translate <file.pdf>",
		Short: "Translate one PDF end to end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			runtime, cleanup, err := workflow.Provide(*cfg, *log)
			if err != nil {
				return err
			}
			defer func() {
				if err := cleanup(); err != nil {
					(*log).Warn("runtime cleanup failed", zap.Error(err))
				}
			}()

			orch, err := runtime.Registry.Resolve(events.AgentOrchestrator)
			if err != nil {
				return err
			}

			// SIGINT cancels the task through its token; agents notice at
			// the next checkpoint and unwind cleanly.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			token := agent.NewCancellationToken()
			go func() {
				<-ctx.Done()
				token.Cancel()
			}()

			taskID := workflow.NewTaskID()
			sub, err := runtime.Bus.Subscribe(taskID)
			if err != nil {
				return err
			}

			printerDone := make(chan struct{})
			go func() {
				defer close(printerDone)
				printProgress(cmd, sub)
			}()

			res, runErr := workflow.Run(ctx, workflow.RunInput{
				FileContent:  content,
				Filename:     filepath.Base(args[0]),
				TaskID:       taskID,
				EnableOCR:    enableOCR,
				Token:        token,
				Bus:          runtime.Bus,
				Orchestrator: orch,
			})

			// Closing the queue ends the printer once it has drained.
			runtime.Bus.Unsubscribe(taskID, sub)
			<-printerDone

			if runErr != nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "translation %s finished\n", res.TranslationID)
			if score, ok := res.QualityReport["score"]; ok {
				fmt.Fprintf(out, "quality score: %v\n", score)
			}
			fmt.Fprintf(out, "stored under %s\n", filepath.Join((*cfg).Storage.DataDir, res.TranslationID))

			if output != "" {
				if err := os.WriteFile(output, []byte(res.TranslatedMD), 0o644); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
				fmt.Fprintf(out, "markdown written to %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&enableOCR, "ocr", false, "force the OCR pipeline")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the translated markdown to this file")

	return cmd
}

// printProgress renders bus events one per line until the queue closes or the
// task reaches a terminal event.
func printProgress(cmd *cobra.Command, sub *bus.Subscription) {
	out := cmd.OutOrStdout()
	for ev := range sub.Events() {
		if ev.Agent == events.AgentSystem && ev.Stage == events.StageHeartbeat {
			continue
		}

		var line string
		if ev.Progress < 0 {
			line = fmt.Sprintf("[ -- ] %-12s %s", ev.Agent, ev.Stage)
		} else {
			line = fmt.Sprintf("[%3d%%] %-12s %s", ev.Progress, ev.Agent, ev.Stage)
		}
		if msg, ok := ev.Detail["error"].(string); ok && msg != "" {
			line += ": " + msg
		}
		fmt.Fprintln(out, line)

		if ev.IsComplete() || (ev.Agent == events.AgentOrchestrator && ev.Stage == events.StageFailed) {
			return
		}
	}
}
