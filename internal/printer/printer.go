package printer

import (
	"github.com/slok/scapd/internal/async"
	"github.com/slok/scapd/internal/model"
	"github.com/slok/scapd/internal/oscap"
)

// Printer knows how to print scapd information in different formats.
type Printer interface {
	PrintTaskList(tasks []model.Task) error
	PrintTask(task model.Task, resultIDs []int) error
	PrintResultList(results []model.Result) error
	PrintResult(result model.Result) error
	PrintActions(actions []async.ActionStatus) error
	PrintBulkScanReport(report model.BulkScanReport) error
	PrintProfiles(profiles []oscap.Profile) error
	PrintChecks(checks []model.CheckResult) error
	PrintMessage(msg string) error
}
