package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.trai.ch/nest/internal/app"
	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/nest/internal/ui/output"
	"go.trai.ch/nest/internal/ui/style"
	"go.trai.ch/zerr"
)

type jsonNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Location string `json:"location"`
}

type jsonUnresolved struct {
	From     string `json:"from"`
	Spec     string `json:"spec"`
	Type     string `json:"type"`
	Error    string `json:"error"`
	Optional bool   `json:"optional"`
}

type jsonResult struct {
	Added            []jsonNode       `json:"added"`
	Removed          []jsonNode       `json:"removed"`
	Unresolved       []jsonUnresolved `json:"unresolved"`
	OptionalFailures []string         `json:"optionalFailures,omitempty"`
	Applied          bool             `json:"applied"`
}

func writeJSON(w io.Writer, res *app.Result) error {
	doc := jsonResult{
		Added:      jsonNodes(res.Diff.Nodes.Add),
		Removed:    jsonNodes(res.Diff.Nodes.Delete),
		Unresolved: []jsonUnresolved{},
		Applied:    res.Applied,
	}
	for _, u := range res.Report.Entries() {
		doc.Unresolved = append(doc.Unresolved, jsonUnresolved{
			From:     u.From.String(),
			Spec:     u.Spec.String(),
			Type:     string(u.Type),
			Error:    u.Err.Error(),
			Optional: u.Type.IsOptional(),
		})
	}
	for _, err := range res.OptionalFailures {
		doc.OptionalFailures = append(doc.OptionalFailures, err.Error())
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return zerr.Wrap(err, "failed to write result")
	}
	return nil
}

func jsonNodes(nodes []*domain.Node) []jsonNode {
	out := []jsonNode{}
	for _, n := range nodes {
		if n.Importer {
			continue
		}
		out = append(out, jsonNode{ID: n.ID.String(), Name: n.Name.String(), Version: n.Version, Location: n.Location})
	}
	return out
}

// renderResult prints one line per changed package followed by a summary.
func renderResult(w io.Writer, res *app.Result) {
	out := output.New(w)

	added := printNodes(out, style.Green, style.Plus, res.Diff.Nodes.Add)
	removed := printNodes(out, style.Red, style.Minus, res.Diff.Nodes.Delete)

	for _, u := range res.Report.Entries() {
		icon := output.Paint(out, style.Yellow, style.Warning)
		_, _ = fmt.Fprintf(out, "%s could not resolve %s %s\n", icon, u.Spec, output.Paint(out, style.Muted, u.Err.Error()))
	}
	for _, err := range res.OptionalFailures {
		icon := output.Paint(out, style.Yellow, style.Warning)
		_, _ = fmt.Fprintf(out, "%s optional package failed %s\n", icon, output.Paint(out, style.Muted, err.Error()))
	}

	switch {
	case !res.Diff.HasChanges():
		_, _ = fmt.Fprintf(out, "%s already up to date\n", output.Paint(out, style.Green, style.Check))
	case res.Applied:
		_, _ = fmt.Fprintf(out, "%s %d added, %d removed\n", output.Paint(out, style.Green, style.Check), added, removed)
	default:
		_, _ = fmt.Fprintf(out, "%s %d to add, %d to remove\n", output.Paint(out, style.Accent, style.Arrow), added, removed)
	}
}

func printNodes(out *termenv.Output, color lipgloss.Color, icon string, nodes []*domain.Node) int {
	count := 0
	for _, n := range nodes {
		if n.Importer {
			continue
		}
		count++
		_, _ = fmt.Fprintf(out, "%s %s %s\n", output.Paint(out, color, icon), n, output.Paint(out, style.Muted, n.Location))
	}
	return count
}
