// File: cmd/secretctl/output.go
// Brief: Human-facing result lines for reconcile and verify. Never values.

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/example/secretctl/internal/reconcile"
	"github.com/example/secretctl/internal/resolve"
	"github.com/example/secretctl/internal/verify"
)

var (
	greenText  = color.New(color.FgGreen).SprintFunc()
	yellowText = color.New(color.FgYellow).SprintFunc()
	redText    = color.New(color.FgRed).SprintFunc()
	cyanText   = color.New(color.FgCyan).SprintFunc()
)

func printResults(out io.Writer, results []reconcile.Result, dryRun bool) {
	suffix := ""
	if dryRun {
		suffix = " (dry-run)"
	}
	for _, res := range results {
		switch res.Action {
		case reconcile.ActionCreated:
			fmt.Fprintf(out, "%s secret %s%s\n", greenText("created"), res.Secret, suffix)
		case reconcile.ActionUpdated:
			fmt.Fprintf(out, "%s secret %s%s\n", yellowText("updated"), res.Secret, suffix)
		case reconcile.ActionUnchanged:
			fmt.Fprintf(out, "%s secret %s\n", cyanText("unchanged"), res.Secret)
		case reconcile.ActionSubmitted:
			fmt.Fprintf(out, "%s secret %s%s\n", cyanText("submitted"), res.Secret, suffix)
		case reconcile.ActionFailed:
			fmt.Fprintf(out, "%s secret %s: %v\n", redText("failed"), res.Secret, res.Err)
		}
	}
}

func printReports(out io.Writer, reports []verify.Report) {
	for _, report := range reports {
		switch report.Status {
		case verify.StatusPass:
			fmt.Fprintf(out, "%s secret %s (%d keys)\n", greenText("pass"), report.Secret, len(report.PresentKeys))
		case verify.StatusPending:
			fmt.Fprintf(out, "%s secret %s: %s\n", yellowText("pending"), report.Secret, strings.Join(report.Reasons, "; "))
		case verify.StatusFail:
			fmt.Fprintf(out, "%s secret %s: %s\n", redText("fail"), report.Secret, strings.Join(report.Reasons, "; "))
		}
	}
}

// reportGenerated makes opt-in generation visible: an operator who believed a
// specific password was set should see that a random one was substituted.
func reportGenerated(out io.Writer, values map[string]*resolve.Value) {
	var generated []string
	for name, val := range values {
		if val.Generated() {
			generated = append(generated, name)
		}
	}
	if len(generated) == 0 {
		return
	}
	sort.Strings(generated)
	fmt.Fprintf(out, "Generated %d value(s) for generatable keys: %s.\n", len(generated), strings.Join(generated, ", "))
}
