package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/scapd/internal/async"
	"github.com/slok/scapd/internal/model"
	"github.com/slok/scapd/internal/oscap"
)

// JSONPrinter prints scapd information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

type taskOutput struct {
	ID                int        `json:"id"`
	Title             string     `json:"title"`
	Enabled           bool       `json:"enabled"`
	Target            string     `json:"target"`
	Mode              string     `json:"mode"`
	Input             string     `json:"input,omitempty"`
	InputInline       bool       `json:"input_inline,omitempty"`
	DatastreamID      string     `json:"datastream_id,omitempty"`
	XCCDFID           string     `json:"xccdf_id,omitempty"`
	Tailoring         string     `json:"tailoring,omitempty"`
	ProfileID         string     `json:"profile,omitempty"`
	OnlineRemediation bool       `json:"online_remediation"`
	CPEIDs            []string   `json:"cpe_ids,omitempty"`
	NotBefore         *time.Time `json:"not_before"`
	RepeatAfterHours  int        `json:"repeat_after_hours"`
	SlipMode          string     `json:"slip_mode"`
	ResultIDs         []int      `json:"result_ids,omitempty"`
}

type resultOutput struct {
	TaskID    int       `json:"task_id"`
	ID        int       `json:"id"`
	Status    string    `json:"status"`
	ExitCode  int       `json:"exit_code"`
	CreatedAt time.Time `json:"created_at"`
}

type actionOutput struct {
	Token       uint64    `json:"token"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    int       `json:"priority"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type bulkScanOutput struct {
	ID         string                 `json:"id"`
	Scope      string                 `json:"scope"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Results    []bulkScanTargetOutput `json:"results"`
}

type bulkScanTargetOutput struct {
	Target   string `json:"target"`
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

type profileOutput struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type checkOutput struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type messageOutput struct {
	Message string `json:"message"`
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func toTaskOutput(t model.Task) taskOutput {
	out := taskOutput{
		ID:                t.ID,
		Title:             t.Title,
		Enabled:           t.Enabled,
		Target:            t.Spec.Target,
		Mode:              string(t.Spec.EffectiveMode()),
		InputInline:       t.Spec.Input.IsInline(),
		DatastreamID:      t.Spec.Input.DatastreamID,
		XCCDFID:           t.Spec.Input.XCCDFID,
		Tailoring:         t.Spec.Tailoring.FilePath,
		ProfileID:         t.Spec.ProfileID,
		OnlineRemediation: t.Spec.OnlineRemediation,
		CPEIDs:            t.Spec.CPEIDs,
		NotBefore:         t.Schedule.NotBefore,
		RepeatAfterHours:  t.Schedule.RepeatAfterHours,
		SlipMode:          string(t.Schedule.SlipMode),
	}
	if t.Spec.Input.IsInline() {
		out.Input = t.Spec.Input.Contents
	} else {
		out.Input = t.Spec.Input.FilePath
	}

	return out
}

// PrintTaskList prints tasks in JSON format.
func (j *JSONPrinter) PrintTaskList(tasks []model.Task) error {
	items := make([]taskOutput, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, toTaskOutput(t))
	}
	return j.encode(items)
}

// PrintTask prints a task with its result IDs in JSON format.
func (j *JSONPrinter) PrintTask(task model.Task, resultIDs []int) error {
	out := toTaskOutput(task)
	out.ResultIDs = resultIDs
	return j.encode(out)
}

func toResultOutput(r model.Result) resultOutput {
	return resultOutput{
		TaskID:    r.TaskID,
		ID:        r.ID,
		Status:    r.Status(),
		ExitCode:  r.ExitCode,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// PrintResultList prints results in JSON format.
func (j *JSONPrinter) PrintResultList(results []model.Result) error {
	items := make([]resultOutput, 0, len(results))
	for _, r := range results {
		items = append(items, toResultOutput(r))
	}
	return j.encode(items)
}

// PrintResult prints a result in JSON format.
func (j *JSONPrinter) PrintResult(r model.Result) error {
	return j.encode(toResultOutput(r))
}

// PrintActions prints the live background actions in JSON format.
func (j *JSONPrinter) PrintActions(actions []async.ActionStatus) error {
	items := make([]actionOutput, 0, len(actions))
	for _, a := range actions {
		items = append(items, actionOutput{
			Token:       uint64(a.Token),
			Description: a.Description,
			Status:      string(a.Status),
			Priority:    a.Priority,
			SubmittedAt: a.SubmittedAt.UTC(),
		})
	}
	return j.encode(items)
}

// PrintBulkScanReport prints a bulk scan report in JSON format.
func (j *JSONPrinter) PrintBulkScanReport(report model.BulkScanReport) error {
	out := bulkScanOutput{
		ID:         report.ID,
		Scope:      string(report.Scope),
		StartedAt:  report.StartedAt.UTC(),
		FinishedAt: report.FinishedAt.UTC(),
		Results:    make([]bulkScanTargetOutput, 0, len(report.Results)),
	}
	for _, r := range report.Results {
		out.Results = append(out.Results, bulkScanTargetOutput{
			Target:   r.Target,
			Status:   model.StatusFromExitCode(r.ExitCode),
			ExitCode: r.ExitCode,
			Error:    r.Error,
		})
	}
	return j.encode(out)
}

// PrintProfiles prints content profiles in JSON format.
func (j *JSONPrinter) PrintProfiles(profiles []oscap.Profile) error {
	items := make([]profileOutput, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, profileOutput{ID: p.ID, Title: p.Title})
	}
	return j.encode(items)
}

// PrintChecks prints doctor checks in JSON format.
func (j *JSONPrinter) PrintChecks(checks []model.CheckResult) error {
	items := make([]checkOutput, 0, len(checks))
	for _, c := range checks {
		items = append(items, checkOutput{ID: c.ID, Status: string(c.Status), Message: c.Message})
	}
	return j.encode(items)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}
