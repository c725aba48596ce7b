package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:         "delete <name>",
	Short:       "Delete an enrolled template and its verification history",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{dbAnnotation: dbRequired},
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		if !deleteYes && !confirm(bufio.NewReader(os.Stdin), fmt.Sprintf("⚠️  Delete template '%s'?", name)) {
			fmt.Println("Aborted.")
			return
		}
		if err := DB.DeleteTemplate(cmd.Context(), name); err != nil {
			utils.Die("Failed to delete template", err, nil)
		}
		fmt.Printf("🗑️  Template '%s' deleted\n", name)
	},
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(deleteCmd)
}
