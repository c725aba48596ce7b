package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:         "label <template_id> <name>",
	Short:       "Rename an enrolled template",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{dbAnnotation: dbRequired},
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			utils.Die("Invalid template ID", err, nil)
		}
		runLabel(cmd.Context(), id, args[1])
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func runLabel(ctx context.Context, id int, name string) {
	if err := DB.RenameTemplate(ctx, id, name); err != nil {
		utils.Die("Failed to label template", err, nil)
	}
	fmt.Printf("✅ Template %d labeled as '%s'\n", id, name)
}
