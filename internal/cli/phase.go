package cli

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

type phaseConfig struct {
	MaxPhase               int     `json:"maxPhase"`
	DeadlineExtensionHours float64 `json:"deadlineExtensionHours"`
	NumPromptsPerDay       int     `json:"numPromptsPerDay"`
}

func printPhaseConfig(w io.Writer, cfg phaseConfig) {
	fmt.Fprintf(w, "Max phase:          %d\n", cfg.MaxPhase)
	fmt.Fprintf(w, "Deadline extension: %sh\n", strconv.FormatFloat(cfg.DeadlineExtensionHours, 'f', -1, 64))
	fmt.Fprintf(w, "Prompts per day:    %d\n", cfg.NumPromptsPerDay)
}

// PhaseCmd groups the scheduler configuration commands.
func PhaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phase",
		Short: "Show or change the phase scheduler configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg phaseConfig
			if err := clientFor(cmd).Do(cmd.Context(), http.MethodGet, "/admin/phase/config", nil, &cfg); err != nil {
				return fmt.Errorf("failed to load phase config: %w", err)
			}
			printPhaseConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	})

	cmd.AddCommand(setter("max-phase [n]", "Set the terminal phase", http.MethodPost, "/admin/phase/maxPhase", true))
	cmd.AddCommand(setter("prompts [n]", "Set how many debates may start per day", http.MethodPatch, "/admin/phase/numPrompts", true))
	cmd.AddCommand(setter("extension [hours]", "Set how long each phase lasts", http.MethodPatch, "/admin/phase/extension", false))
	return cmd
}

// setter builds a command that sends one numeric value. Whole number
// settings are checked locally before the request is made.
func setter(use, short, method, path string, whole bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any
			if whole {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("%s must be an integer", args[0])
				}
				value = n
			} else {
				f, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("%s must be a number", args[0])
				}
				value = f
			}

			var cfg phaseConfig
			if err := clientFor(cmd).Do(cmd.Context(), method, path, map[string]any{"value": value}, &cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Updated\n", okMark)
			printPhaseConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}
