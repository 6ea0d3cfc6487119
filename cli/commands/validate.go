package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/contentql/cli/internal/ui"
	"github.com/satishbabariya/contentql/runtime/client"
)

var validateCmd = &cobra.Command{
	Use:   "validate [project-path]",
	Short: "Validate a project file",
	Long: `Validate a project file: the model, its relations and the ACL roles.

This command will:
- Check the project format version
- Resolve every relation and its inverse side
- Check that every granted field exists and every predicate is defined
- Display the entities and roles of the project`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		cfg.ProjectPath = args[0]
	}

	ui.PrintHeader("contentql", "Validate Project")

	project, err := loadProject()
	if err != nil {
		ui.PrintError("Project validation failed:")
		return err
	}

	absPath, _ := filepath.Abs(cfg.ProjectPath)
	ui.PrintSuccess("Project is valid: %s", absPath)
	fmt.Println()

	return printProject(project)
}

func printProject(project *client.Project) error {
	ui.PrintSection(fmt.Sprintf("Entities (%d)", len(project.Schema.Entities)))
	if err := ui.PrintTable([]string{"Entity", "Table", "Columns", "Relations", "Unique"}, ui.EntityRows(project.Schema)); err != nil {
		return err
	}

	fmt.Println()
	if len(project.Roles) == 0 {
		ui.PrintWarning("No roles defined; every request will be rejected")
		return nil
	}
	ui.PrintSection(fmt.Sprintf("Roles (%d)", len(project.Roles)))
	return ui.PrintTable([]string{"Role", "Entities", "Predicates"}, ui.RoleRows(project.Roles))
}
