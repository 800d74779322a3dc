package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/tanpawarit/smart-zoo-assistant/agent/policy"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

//go:embed template/system.txt
var systemRaw string

var systemTmpl = template.Must(template.New("system").Funcs(template.FuncMap{
	"join": func(ops []string) string { return strings.Join(ops, ", ") },
}).Parse(systemRaw))

type systemData struct {
	Rows   []policy.Row
	Window string
}

// System renders the system prompt for the given permission matrix and
// dedup window.
func System(matrix *policy.Matrix, window time.Duration) (string, error) {
	var b strings.Builder
	err := systemTmpl.Execute(&b, systemData{
		Rows:   matrix.Rows(),
		Window: humanizeWindow(window),
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

// FormatQuery tags the caller's query with role and user id.
func FormatQuery(role catalog.Role, userID, query string) string {
	return fmt.Sprintf("Role: '%s'. User id: '%s'.\nQuery:\n%s", role, userID, strings.TrimSpace(query))
}

func humanizeWindow(d time.Duration) string {
	switch {
	case d > 0 && d%(24*time.Hour) == 0:
		if n := int(d / (24 * time.Hour)); n > 1 {
			return fmt.Sprintf("%d days", n)
		}
		return "24 hours"
	case d > 0 && d%time.Hour == 0:
		if n := int(d / time.Hour); n > 1 {
			return fmt.Sprintf("%d hours", n)
		}
		return "hour"
	case d > 0:
		return d.String()
	}
	return "24 hours"
}
