package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/slok/scapd/internal/async"
	"github.com/slok/scapd/internal/model"
	"github.com/slok/scapd/internal/oscap"
)

// TablePrinter prints scapd information in a table format.
type TablePrinter struct {
	writer  io.Writer
	timeNow func() time.Time
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w, timeNow: time.Now}
}

func (t *TablePrinter) tabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
}

// PrintTaskList prints tasks in a table format.
func (t *TablePrinter) PrintTaskList(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	now := t.timeNow().UTC()
	tw := t.tabWriter()
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tTITLE\tTARGET\tMODE\tNEXT RUN\tREPEAT")
	for _, task := range tasks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			task.ID,
			task.Title,
			task.Spec.Target,
			task.Spec.EffectiveMode(),
			FormatNextRun(task, now),
			FormatRepeat(task.Schedule),
		)
	}

	return nil
}

// PrintTask prints the task details.
func (t *TablePrinter) PrintTask(task model.Task, resultIDs []int) error {
	now := t.timeNow().UTC()
	w := t.writer

	fmt.Fprintf(w, "ID:           %d\n", task.ID)
	fmt.Fprintf(w, "Title:        %s\n", task.Title)
	fmt.Fprintf(w, "Enabled:      %t\n", task.Enabled)
	fmt.Fprintf(w, "Target:       %s\n", task.Spec.Target)
	fmt.Fprintf(w, "Mode:         %s\n", task.Spec.EffectiveMode())
	if task.Spec.Input.IsSet() {
		fmt.Fprintf(w, "Input:        %s\n", describeContent(task.Spec.Input.Content))
	}
	if task.Spec.Input.DatastreamID != "" {
		fmt.Fprintf(w, "Datastream:   %s\n", task.Spec.Input.DatastreamID)
	}
	if task.Spec.Input.XCCDFID != "" {
		fmt.Fprintf(w, "XCCDF:        %s\n", task.Spec.Input.XCCDFID)
	}
	if task.Spec.Tailoring.IsSet() {
		fmt.Fprintf(w, "Tailoring:    %s\n", describeContent(task.Spec.Tailoring))
	}
	if task.Spec.ProfileID != "" {
		fmt.Fprintf(w, "Profile:      %s\n", task.Spec.ProfileID)
	}
	if len(task.Spec.CPEIDs) > 0 {
		fmt.Fprintf(w, "CPEs:         %s\n", strings.Join(task.Spec.CPEIDs, ", "))
	}
	fmt.Fprintf(w, "Remediation:  %t\n", task.Spec.OnlineRemediation)
	fmt.Fprintf(w, "Next run:     %s\n", FormatNextRun(task, now))
	fmt.Fprintf(w, "Repeat:       %s\n", FormatRepeat(task.Schedule))
	fmt.Fprintf(w, "Slip mode:    %s\n", task.Schedule.SlipMode)
	fmt.Fprintf(w, "Results:      %d\n", len(resultIDs))

	return nil
}

func describeContent(c model.Content) string {
	if c.IsInline() {
		return fmt.Sprintf("inline (%s)", FormatBytes(int64(len(c.Contents))))
	}
	return c.FilePath
}

// PrintResultList prints results in a table format.
func (t *TablePrinter) PrintResultList(results []model.Result) error {
	if len(results) == 0 {
		return nil
	}

	now := t.timeNow().UTC()
	tw := t.tabWriter()
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tSTATUS\tEXIT CODE\tCREATED")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", r.ID, r.Status(), r.ExitCode, RelativeTime(r.CreatedAt, now))
	}

	return nil
}

// PrintResult prints the result details.
func (t *TablePrinter) PrintResult(r model.Result) error {
	fmt.Fprintf(t.writer, "Task:       %d\n", r.TaskID)
	fmt.Fprintf(t.writer, "Result:     %d\n", r.ID)
	fmt.Fprintf(t.writer, "Status:     %s\n", r.Status())
	fmt.Fprintf(t.writer, "Exit code:  %d\n", r.ExitCode)
	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(r.CreatedAt))

	return nil
}

// PrintActions prints the live background actions.
func (t *TablePrinter) PrintActions(actions []async.ActionStatus) error {
	if len(actions) == 0 {
		return nil
	}

	now := t.timeNow().UTC()
	tw := t.tabWriter()
	defer tw.Flush()

	fmt.Fprintln(tw, "TOKEN\tSTATUS\tPRIORITY\tDESCRIPTION\tSUBMITTED")
	for _, a := range actions {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", a.Token, a.Status, a.Priority, a.Description, RelativeTime(a.SubmittedAt, now))
	}

	return nil
}

// PrintBulkScanReport prints the outcome of every scanned target.
func (t *TablePrinter) PrintBulkScanReport(report model.BulkScanReport) error {
	fmt.Fprintf(t.writer, "Scan:      %s (%s)\n", report.ID, report.Scope)
	fmt.Fprintf(t.writer, "Duration:  %s\n\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))

	tw := t.tabWriter()
	defer tw.Flush()

	fmt.Fprintln(tw, "TARGET\tSTATUS\tERROR")
	for _, r := range report.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Target, model.StatusFromExitCode(r.ExitCode), r.Error)
	}

	return nil
}

// PrintProfiles prints the profiles of a content.
func (t *TablePrinter) PrintProfiles(profiles []oscap.Profile) error {
	if len(profiles) == 0 {
		return nil
	}

	tw := t.tabWriter()
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tTITLE")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\n", p.ID, p.Title)
	}

	return nil
}

// PrintChecks prints the doctor checks.
func (t *TablePrinter) PrintChecks(checks []model.CheckResult) error {
	tw := t.tabWriter()
	defer tw.Flush()

	for _, c := range checks {
		fmt.Fprintf(tw, "[%s]\t%s\t%s\n", strings.ToUpper(string(c.Status)), c.ID, c.Message)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
