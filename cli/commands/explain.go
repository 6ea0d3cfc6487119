package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/contentql/cli/internal/ui"
	"github.com/satishbabariya/contentql/cli/internal/watch"
	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/executor"
	"github.com/satishbabariya/contentql/query/request"
	"github.com/satishbabariya/contentql/runtime/client"
)

var explainCmd = &cobra.Command{
	Use:   "explain <request-file>",
	Short: "Print the SQL of each root query without running it",
	Long: `Compile the queries of a request document and print the root statement of
each one. Statements for nested to-many relations depend on parent rows and
are not shown.

With --watch the request and the project file are recompiled on every save.`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

var (
	explainWatch bool
	explainRaw   bool
	explainVars  []string
)

func init() {
	explainCmd.Flags().BoolVarP(&explainWatch, "watch", "w", false, "Recompile when the request or project changes")
	explainCmd.Flags().BoolVar(&explainRaw, "raw", false, "Print plain markdown")
	explainCmd.Flags().StringArrayVar(&explainVars, "var", nil, "Bind an ACL variable (name=value, repeatable)")

	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	vars, err := parseVars(explainVars)
	if err != nil {
		return err
	}

	render := func() error {
		project, err := loadProject()
		if err != nil {
			return err
		}
		doc, err := readRequest(project, args[0])
		if err != nil {
			return err
		}
		role, err := resolveRole(doc)
		if err != nil {
			return err
		}
		out, err := explainMarkdown(project, role, mergeVars(vars, doc.Variables), doc.Queries)
		if err != nil {
			return err
		}
		if explainRaw {
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		}
		return ui.PrintMarkdown(out)
	}

	if !explainWatch {
		return render()
	}

	w, err := watch.NewWatcher(render, args[0], cfg.ProjectPath)
	if err != nil {
		return err
	}
	w.OnError = func(err error) { ui.PrintError("%v", err) }
	if err := w.Start(); err != nil {
		return err
	}
	ui.PrintInfo("Watching %s and %s, press Ctrl+C to stop", args[0], cfg.ProjectPath)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	return w.Stop()
}

// explainMarkdown renders the root statement of every query as markdown
func explainMarkdown(project *client.Project, role string, vars acl.Variables, queries []request.Query) (string, error) {
	perms, err := project.Permissions(role)
	if err != nil {
		return "", err
	}
	factory := acl.NewPredicateFactory(perms, acl.NewVariableInjector(vars))
	sb := executor.NewSelectBuilder(project.Schema, nil, factory)

	var b strings.Builder
	for _, q := range queries {
		stmt, err := sb.Explain(q.Entity, q.Node)
		if err != nil {
			return "", fmt.Errorf("%s: %w", q.Node.NodeAlias(), err)
		}
		fmt.Fprintf(&b, "## %s\n\n", q.Node.NodeAlias())
		fmt.Fprintf(&b, "%s `%s` as role `%s`\n\n", q.Kind, q.Entity, role)
		fmt.Fprintf(&b, "```sql\n%s\n```\n\n", stmt.SQL)
		if len(stmt.Args) > 0 {
			b.WriteString("| # | value |\n|---|---|\n")
			for i, arg := range stmt.Args {
				fmt.Fprintf(&b, "| $%d | `%v` |\n", i+1, arg)
			}
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
