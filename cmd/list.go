package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facegate/internal/store"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:         "list",
	Short:       "List all enrolled templates",
	Annotations: map[string]string{dbAnnotation: dbRequired},
	Run: func(cmd *cobra.Command, args []string) {
		runList(cmd.Context(), mustGetInt(cmd, "history"))
	},
}

func init() {
	listCmd.Flags().Int("history", 0, "Also show the last N verification decisions of each template")
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context, history int) {
	templates, err := DB.ListTemplates(ctx)
	if err != nil {
		utils.Die("Failed to list templates", err, nil)
	}

	if len(templates) == 0 {
		fmt.Println("No templates enrolled yet.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSAMPLES\tVERIFICATIONS\tENROLLED")
	fmt.Fprintln(w, "--\t----\t-------\t-------------\t--------")

	for _, t := range templates {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", t.ID, t.Name, t.Samples, t.Verifications, t.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()

	if history <= 0 {
		return
	}
	for _, t := range templates {
		if t.Verifications == 0 {
			continue
		}
		recent, err := DB.RecentVerifications(ctx, t.ID, history)
		if err != nil {
			utils.Die("Failed to load verification history", err, nil)
		}
		fmt.Printf("\n📜 %s\n", t.Name)
		writeHistory(os.Stdout, recent)
	}
}

// writeHistory prints decisions newest first, one per line.
func writeHistory(out io.Writer, decisions []store.Verification) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, v := range decisions {
		verdict := "❌ no match"
		if v.Matched {
			verdict = "✅ match"
		}
		fmt.Fprintf(w, "  %s\t%s\tdistance %.3f\n", v.CreatedAt.Local().Format("2006-01-02 15:04:05"), verdict, v.Distance)
	}
	w.Flush()
}
