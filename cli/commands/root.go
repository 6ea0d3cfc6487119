// Package commands implements the contentql command-line tool.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/satishbabariya/contentql/cli/internal/config"
	"github.com/satishbabariya/contentql/cli/internal/version"
	"github.com/satishbabariya/contentql/internal/debug"
)

var rootCmd = &cobra.Command{
	Use:   "contentql",
	Short: "Compile and run content queries against PostgreSQL",
	Long: `contentql compiles hierarchical read requests and nested write requests
into parameterized SQL, enforcing row and field level access control.

Requests are YAML or JSON documents naming root operations such as
listPost, getPost, createPost or updatePost.`,
	Version:           version.Get().String(),
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var (
	cfg *config.Config

	projectFlag  string
	databaseFlag string
	driverFlag   string
	roleFlag     string
	debugFlag    bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&projectFlag, "project", "p", "", "Path to the project file (default contentql.yaml)")
	flags.StringVar(&databaseFlag, "database-url", "", "Database connection string (default $DATABASE_URL)")
	flags.StringVar(&driverFlag, "driver", "", "Database driver: postgres or pgx")
	flags.StringVarP(&roleFlag, "role", "r", "", "Role whose permissions apply")
	flags.BoolVar(&debugFlag, "debug", false, "Log every statement")
}

// Execute is the main entry point for the CLI
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("project") {
		loaded.ProjectPath = projectFlag
	}
	if flags.Changed("database-url") {
		loaded.DatabaseURL = databaseFlag
	}
	if flags.Changed("driver") {
		loaded.Driver = driverFlag
	}
	if flags.Changed("debug") {
		loaded.Debug = debugFlag
	}
	cfg = loaded
	debug.Init(cfg.Debug)
	return nil
}
