// File: cmd/run.go
package cmd

import (
	"fmt"
	"os"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/observability"
	"github.com/webpilot-ai/webpilot/internal/session"
)

// newRunCmd creates the `run` command: one user request, executed end to
// end against the browser.
func newRunCmd() *cobra.Command {
	var (
		targets     []string
		headless    bool
		quiet       bool
		exportCache string
	)

	runCmd := &cobra.Command{
		Use:   "run \"<request>\"",
		Short: "Run a natural-language browser task",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			request := strings.Join(args, " ")

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			agent, err := session.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("start agent: %w", err)
			}
			defer agent.Close()

			if !quiet {
				go printEvents(cmd, agent.Events())
			}

			var output interface{}
			success := false
			if len(targets) > 0 {
				agg, err := agent.HandleFanOut(ctx, request, targets)
				if err != nil {
					return err
				}
				output, success = agg, agg.Success
			} else {
				result, err := agent.Handle(ctx, request)
				if err != nil {
					return err
				}
				output, success = result, result.Success
			}

			encoded, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			cmd.Println(string(encoded))

			if exportCache != "" {
				if err := writeCacheExport(agent, exportCache); err != nil {
					logger.Warn("Could not export selector cache", zap.Error(err))
				}
			}

			if !success {
				logger.Warn("Request did not complete successfully")
				return fmt.Errorf("request did not complete successfully")
			}
			return nil
		},
	}

	runCmd.Flags().StringSliceVarP(&targets, "targets", "t", nil, "fan the request out across these URLs in parallel tabs")
	runCmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress events")
	runCmd.Flags().StringVar(&exportCache, "export-cache", "", "write the selector cache entries to this file after the run")
	return runCmd
}

// writeCacheExport dumps the selector cache entries to path and logs the
// cache counters.
func writeCacheExport(agent *session.Agent, path string) error {
	data, err := agent.ExportCache()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	stats := agent.CacheStats()
	observability.GetLogger().Info("Selector cache exported",
		zap.String("path", path),
		zap.Int("entries", stats.Entries),
		zap.Int("hits", stats.Hits),
		zap.Int("misses", stats.Misses),
		zap.Int("healings", stats.Healings),
		zap.Int("evictions", stats.Evictions),
	)
	return nil
}

// printEvents renders the progress stream while a request runs.
func printEvents(cmd *cobra.Command, events <-chan schemas.Event) {
	logger := observability.GetLogger().Named("events")
	for event := range events {
		switch event.Type {
		case schemas.EventAction:
			cmd.PrintErrf("→ %s\n", event.Message)
		case schemas.EventError:
			cmd.PrintErrf("✗ %s\n", event.Message)
		case schemas.EventComplete:
			cmd.PrintErrf("■ %s\n", event.Message)
		default:
			logger.Debug("Progress event",
				zap.String("type", string(event.Type)),
				zap.String("request_id", event.RequestID))
		}
	}
}
