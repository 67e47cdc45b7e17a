package launchplan

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/core-tools/hsu-ecosystem-go/pkg/processcontrol"
)

// scheduleLength is how many backoff steps Describe prints
const scheduleLength = 5

// Describe writes a human readable summary of the plan
func (p *Plan) Describe(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "APP\tMODE\tINSTANCES\tRESTART\tMEMORY LIMIT\tCOMMAND\n")
	for _, app := range p.Apps {
		memory := "-"
		if app.MemoryLimit != "" {
			memory = fmt.Sprintf("%s (%s)", app.MemoryLimit, app.MemoryLimitHuman)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			app.Name, app.ExecMode, len(app.Instances), restartSummary(app), memory, strings.Join(app.Command, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, app := range p.Apps {
		fmt.Fprintf(w, "\n%s\n", app.Name)
		fmt.Fprintf(w, "  cwd:        %s\n", app.Dir)
		fmt.Fprintf(w, "  stdout:     %s\n", app.OutLog)
		fmt.Fprintf(w, "  stderr:     %s\n", app.ErrorLog)
		if app.Policy == processcontrol.RestartAlways {
			fmt.Fprintf(w, "  delays:     %s\n", formatSchedule(app.Restart.Schedule(scheduleLength)))
			fmt.Fprintf(w, "  give up:    after %d restarts shorter than %s\n", app.Restart.MaxRestarts, app.Restart.MinUptime)
		}
		for _, instance := range app.Instances {
			fmt.Fprintf(w, "  [%d] pid file: %s\n", instance.Index, instance.PIDFile)
		}
	}

	_, err := fmt.Fprintf(w, "\n%d app(s), %d process(es), home: %s\n", len(p.Apps), p.TotalProcesses(), p.Home)
	return err
}

func restartSummary(app AppPlan) string {
	if app.Policy != processcontrol.RestartAlways {
		return "never"
	}
	if app.Restart.UsesExpBackoff() {
		return fmt.Sprintf("backoff from %s", app.Restart.ExpBackoffBase)
	}
	return fmt.Sprintf("after %s", app.Restart.RestartDelay)
}

func formatSchedule(delays []time.Duration) string {
	parts := make([]string, 0, len(delays)+1)
	for _, d := range delays {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, ", ") + ", ..."
}
