package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/satishbabariya/contentql/schema"
)

// Out and Err receive all terminal output; tests swap them for buffers.
var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

var (
	accent = lipgloss.Color("#5FAFFF")
	muted  = lipgloss.Color("#767676")

	titleStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(muted)
)

type level struct {
	mark  string
	style lipgloss.Style
	err   bool
}

var (
	levelSuccess = level{mark: "✓", style: lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD787")).Bold(true)}
	levelError   = level{mark: "✗", style: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true), err: true}
	levelWarning = level{mark: "!", style: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")).Bold(true)}
	levelInfo    = level{mark: "·", style: lipgloss.NewStyle().Foreground(accent)}
)

func (l level) print(format string, args []any) {
	w := Out
	if l.err {
		w = Err
	}
	fmt.Fprintln(w, l.style.Render(l.mark+" "+fmt.Sprintf(format, args...)))
}

func terminalWidth() int {
	if w := pterm.GetTerminalWidth(); w > 0 {
		return w
	}
	return 80
}

// PrintHeader prints the command banner
func PrintHeader(title, subtitle string) {
	banner := lipgloss.JoinHorizontal(lipgloss.Bottom, titleStyle.Render(title), " ", mutedStyle.Render(subtitle))
	fmt.Fprintln(Out, lipgloss.NewStyle().
		BorderStyle(lipgloss.ThickBorder()).
		BorderLeft(true).
		BorderForeground(accent).
		PaddingLeft(1).
		MarginBottom(1).
		Render(banner))
}

func PrintSuccess(format string, args ...any) { levelSuccess.print(format, args) }

// PrintError writes to Err
func PrintError(format string, args ...any) { levelError.print(format, args) }

func PrintWarning(format string, args ...any) { levelWarning.print(format, args) }

func PrintInfo(format string, args ...any) { levelInfo.print(format, args) }

// PrintSection prints an underlined section title
func PrintSection(title string) {
	fmt.Fprintln(Out)
	fmt.Fprintln(Out, titleStyle.Underline(true).Render(title))
}

// PrintTable renders rows below a header line
func PrintTable(headers []string, rows [][]string) error {
	data := append(pterm.TableData{headers}, rows...)
	return pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithWriter(Out).
		WithData(data).
		Render()
}

// PrintMarkdown renders content for the terminal with glamour
func PrintMarkdown(content string) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth()),
	)
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = fmt.Fprint(Out, rendered)
	return err
}

// EntityRows summarises entities of s as table rows
func EntityRows(s *schema.Schema) [][]string {
	var rows [][]string
	for _, name := range s.EntityNames() {
		entity := s.MustEntity(name)
		var columns, relations []string
		for _, field := range entity.FieldOrder {
			switch f := entity.Fields[field].(type) {
			case *schema.Column:
				columns = append(columns, field)
			case *schema.Relation:
				relations = append(relations, fmt.Sprintf("%s (%s %s)", field, f.Kind, f.Target))
			}
		}
		unique := make([]string, 0, len(entity.UniqueKeys()))
		for _, key := range entity.UniqueKeys() {
			unique = append(unique, "["+strings.Join(key, ", ")+"]")
		}
		rows = append(rows, []string{
			name,
			entity.TableName,
			strings.Join(columns, ", "),
			strings.Join(relations, ", "),
			strings.Join(unique, " "),
		})
	}
	return rows
}

// RoleRows summarises role permissions as table rows
func RoleRows(roles schema.Roles) [][]string {
	names := make([]string, 0, len(roles))
	for name := range roles {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows [][]string
	for _, role := range names {
		entities := make([]string, 0, len(roles[role]))
		predicates := 0
		for entity, ep := range roles[role] {
			entities = append(entities, entity)
			predicates += len(ep.Predicates)
		}
		sort.Strings(entities)
		rows = append(rows, []string{role, strings.Join(entities, ", "), fmt.Sprint(predicates)})
	}
	return rows
}

// Status prints a coloured ok or failed marker for a named result
func Status(w io.Writer, name string, ok bool) {
	if ok {
		color.New(color.FgGreen, color.Bold).Fprintf(w, "%s ok\n", name)
		return
	}
	color.New(color.FgRed, color.Bold).Fprintf(w, "%s failed\n", name)
}
