package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/afero"

	"github.com/satishbabariya/contentql/cli/internal/config"
	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/request"
	"github.com/satishbabariya/contentql/runtime/client"
	"github.com/satishbabariya/contentql/schema"
)

func loadProject() (*client.Project, error) {
	return client.LoadProject(config.AppFs, cfg.ProjectPath)
}

func readRequest(project *client.Project, path string) (*request.Document, error) {
	data, err := afero.ReadFile(config.AppFs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	return request.NewDecoder(project.Schema).Decode(data)
}

// resolveRole prefers the flag, then the document, then the config file
func resolveRole(doc *request.Document) (string, error) {
	switch {
	case roleFlag != "":
		return roleFlag, nil
	case doc.Role != "":
		return doc.Role, nil
	case cfg.Role != "":
		return cfg.Role, nil
	}
	return "", fmt.Errorf("no role given; use --role or set role in the request")
}

func openClient(project *client.Project) (*client.Client, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("no database configured; set DATABASE_URL or --database-url")
	}
	isolation, err := client.ParseIsolation(cfg.Isolation)
	if err != nil {
		return nil, err
	}
	return client.Open(cfg.Driver, cfg.DatabaseURL, project,
		client.WithIsolation(isolation),
		client.WithMaxOpenConns(cfg.MaxOpenConns),
		client.WithMiddleware(client.LoggingMiddleware()),
	)
}

// parseVars parses name=value pairs; repeating a name binds several values
func parseVars(pairs []string) (acl.Variables, error) {
	vars := acl.Variables{}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable %q, expected name=value", pair)
		}
		vars[name] = append(vars[name], value)
	}
	return vars, nil
}

// mergeVars binds document variables not given on the command line
func mergeVars(vars acl.Variables, doc map[string][]any) acl.Variables {
	for name, values := range doc {
		if _, ok := vars[name]; !ok {
			vars[name] = values
		}
	}
	return vars
}

// referencedVariables lists variables used by the predicates of perms
func referencedVariables(perms schema.Permissions) []string {
	seen := make(map[string]bool)
	for _, ep := range perms {
		for _, pred := range ep.Predicates {
			collectVariables(pred, seen)
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func collectVariables(w ast.Where, seen map[string]bool) {
	for _, f := range w.Fields {
		switch f := f.(type) {
		case ast.Condition:
			collectConditionVariables(f, seen)
		case ast.Where:
			collectVariables(f, seen)
		}
	}
	for _, part := range w.And {
		collectVariables(part, seen)
	}
	for _, part := range w.Or {
		collectVariables(part, seen)
	}
	if w.Not != nil {
		collectVariables(*w.Not, seen)
	}
}

func collectConditionVariables(c ast.Condition, seen map[string]bool) {
	for _, op := range c.Operands {
		if ref, ok := op.Value.(ast.VariableRef); ok {
			seen[ref.Name] = true
		}
	}
	for _, part := range c.And {
		collectConditionVariables(part, seen)
	}
	for _, part := range c.Or {
		collectConditionVariables(part, seen)
	}
	if c.Not != nil {
		collectConditionVariables(*c.Not, seen)
	}
}

// promptVariables asks for every referenced variable that is still unbound.
// Comma separated answers bind several values.
func promptVariables(names []string, vars acl.Variables) error {
	for _, name := range names {
		if _, ok := vars[name]; ok {
			continue
		}
		var answer string
		if err := survey.AskOne(&survey.Input{
			Message: fmt.Sprintf("Value of %s:", name),
			Help:    "Separate several values with commas",
		}, &answer); err != nil {
			return err
		}
		for _, v := range strings.Split(answer, ",") {
			if v = strings.TrimSpace(v); v != "" {
				vars[name] = append(vars[name], v)
			}
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
