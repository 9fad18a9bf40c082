package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type debateView struct {
	Key      string     `json:"key"`
	Prompt   string     `json:"prompt"`
	Category string     `json:"category"`
	CurPhase int        `json:"curPhase"`
	Phase    string     `json:"phase"`
	Deadline *time.Time `json:"deadline,omitempty"`
	Opinions []struct {
		Author      string  `json:"author"`
		LikertScale float64 `json:"likertScale"`
		Content     string  `json:"content"`
	} `json:"opinions,omitempty"`
}

func printDebates(w io.Writer, debates []debateView) {
	if len(debates) == 0 {
		fmt.Fprintln(w, "No debates found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPHASE\tDEADLINE\tPROMPT")
	fmt.Fprintln(tw, "--\t-----\t--------\t------")
	for _, d := range debates {
		deadline := "-"
		if d.Deadline != nil {
			deadline = d.Deadline.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Key, d.Phase, deadline, d.Prompt)
	}
	tw.Flush()
}

// DebatesCmd groups the debate listing and moderation commands.
func DebatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "debates",
		Aliases: []string{"debate"},
		Short:   "List and moderate debates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "active",
		Short: "List running debates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var debates []debateView
			if err := clientFor(cmd).Do(cmd.Context(), http.MethodGet, "/activeDebates", nil, &debates); err != nil {
				return fmt.Errorf("failed to list active debates: %w", err)
			}
			printDebates(cmd.OutOrStdout(), debates)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "List archived debates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var debates []debateView
			if err := clientFor(cmd).Do(cmd.Context(), http.MethodGet, "/historyDebates", nil, &debates); err != nil {
				return fmt.Errorf("failed to list archived debates: %w", err)
			}
			printDebates(cmd.OutOrStdout(), debates)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [debate-id]",
		Short: "Show one debate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFor(cmd)
			id := url.PathEscape(args[0])

			var d debateView
			err := client.Do(cmd.Context(), http.MethodGet, "/activeDebates/"+id, nil, &d)
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
				err = client.Do(cmd.Context(), http.MethodGet, "/historyDebates/"+id, nil, &d)
			}
			if err != nil {
				return fmt.Errorf("debate not found: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Debate: %s\n", d.Key)
			fmt.Fprintf(out, "Prompt: %s\n", d.Prompt)
			if d.Category != "" {
				fmt.Fprintf(out, "Category: %s\n", d.Category)
			}
			fmt.Fprintf(out, "Phase: %s (%d)\n", d.Phase, d.CurPhase)
			if d.Deadline != nil {
				fmt.Fprintf(out, "Deadline: %s\n", d.Deadline.Local().Format("2006-01-02 15:04"))
			}
			for _, op := range d.Opinions {
				fmt.Fprintf(out, "  %s [%g] %s\n", color.New(color.FgCyan).Sprint(op.Author), op.LikertScale, op.Content)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deadline [debate-id] [RFC3339 time]",
		Short: "Move the deadline of a running debate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deadline, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return fmt.Errorf("invalid deadline %q: %w", args[1], err)
			}
			body := map[string]any{"debateID": args[0], "deadline": deadline}
			if err := clientFor(cmd).Do(cmd.Context(), http.MethodPatch, "/admin/debate/changeDeadline", body, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deadline of %s set to %s\n", okMark, args[0], deadline.Format(time.RFC3339))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [debate-id]",
		Short: "Delete a debate with its opinions and matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFor(cmd).Do(cmd.Context(), http.MethodDelete, "/admin/debates/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted debate %s\n", okMark, args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "finalize [debate-id]",
		Short: "Freeze the opinion deltas of a reviewed debate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Deltas map[string]float64 `json:"deltas"`
			}
			if err := clientFor(cmd).Do(cmd.Context(), http.MethodPost, "/admin/debates/"+url.PathEscape(args[0])+"/finalize", nil, &out); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(out.Deltas) == 0 {
				fmt.Fprintf(w, "%s No reviewed opinions in %s\n", warnMark, args[0])
				return nil
			}
			ids := make([]string, 0, len(out.Deltas))
			for id := range out.Deltas {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "OPINION\tDELTA")
			for _, id := range ids {
				fmt.Fprintf(tw, "%s\t%s\n", id, strconv.FormatFloat(out.Deltas[id], 'f', -1, 64))
			}
			tw.Flush()
			return nil
		},
	})

	assign := &cobra.Command{
		Use:   "assign [debate-id]",
		Short: "Compute a balanced review assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, _ := cmd.Flags().GetInt("k")
			var out struct {
				Found      bool                `json:"found"`
				Assignment map[string][]string `json:"assignment"`
			}
			path := fmt.Sprintf("/admin/debates/%s/assignment?k=%d", url.PathEscape(args[0]), k)
			if err := clientFor(cmd).Do(cmd.Context(), http.MethodGet, path, nil, &out); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if !out.Found {
				fmt.Fprintf(w, "%s No assignment gives every participant exactly %d reviews\n", warnMark, k)
				return nil
			}
			reviewers := make([]string, 0, len(out.Assignment))
			for r := range out.Assignment {
				reviewers = append(reviewers, r)
			}
			sort.Strings(reviewers)
			for _, r := range reviewers {
				fmt.Fprintf(w, "%s -> %v\n", r, out.Assignment[r])
			}
			return nil
		},
	}
	assign.Flags().Int("k", 1, "reviews per participant")
	cmd.AddCommand(assign)

	return cmd
}
