package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/contentql/cli/internal/ui"
	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/request"
	"github.com/satishbabariya/contentql/runtime/client"
)

var queryCmd = &cobra.Command{
	Use:   "query <request-file>",
	Short: "Run the queries of a request and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(cmd, args[0], false)
	},
}

var mutateCmd = &cobra.Command{
	Use:   "mutate <request-file>",
	Short: "Run the mutations of a request in one transaction",
	Long: `Run the mutations of a request in one transaction and print the results as
JSON. The transaction is rolled back when any mutation fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(cmd, args[0], true)
	},
}

var (
	runVars        []string
	runInteractive bool
)

func init() {
	for _, cmd := range []*cobra.Command{queryCmd, mutateCmd} {
		cmd.Flags().StringArrayVar(&runVars, "var", nil, "Bind an ACL variable (name=value, repeatable)")
		cmd.Flags().BoolVarP(&runInteractive, "interactive", "i", false, "Prompt for unbound ACL variables")
		rootCmd.AddCommand(cmd)
	}
}

func runRequest(cmd *cobra.Command, path string, mutate bool) error {
	project, err := loadProject()
	if err != nil {
		return err
	}
	doc, err := readRequest(project, path)
	if err != nil {
		return err
	}
	role, vars, err := requestBindings(project, doc)
	if err != nil {
		return err
	}

	c, err := openClient(project)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := cmd.OutOrStdout()
	if !mutate {
		if len(doc.Queries) == 0 {
			return fmt.Errorf("%s has no queries", path)
		}
		data, err := c.Query(ctx, role, vars, doc.Queries)
		if err != nil {
			return err
		}
		return writeJSON(out, data)
	}

	if len(doc.Mutations) == 0 {
		return fmt.Errorf("%s has no mutations", path)
	}
	resp, err := c.Mutate(ctx, role, vars, doc.Mutations)
	if err != nil {
		return err
	}
	for _, node := range doc.Mutations {
		name := node.Alias
		if name == "" {
			name = string(node.Kind) + node.Entity
		}
		if result, ok := resp.Results[name]; ok {
			ui.Status(cmd.ErrOrStderr(), name, result.OK)
		}
	}
	if err := writeJSON(out, resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("mutation rolled back")
	}
	return nil
}

func requestBindings(project *client.Project, doc *request.Document) (string, acl.Variables, error) {
	role, err := resolveRole(doc)
	if err != nil {
		return "", nil, err
	}
	perms, err := project.Permissions(role)
	if err != nil {
		return "", nil, err
	}
	vars, err := parseVars(runVars)
	if err != nil {
		return "", nil, err
	}
	vars = mergeVars(vars, doc.Variables)
	if runInteractive {
		if err := promptVariables(referencedVariables(perms), vars); err != nil {
			return "", nil, err
		}
	}
	return role, vars, nil
}
