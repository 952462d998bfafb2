package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/scapd/internal/model"
)

// taskFlags are the task fields that can be set from the command line,
// only the flags set by the user are applied.
type taskFlags struct {
	title, target, mode, input, datastreamID, xccdfID string
	tailoring, profile, notBefore, slipMode           string
	remediate                                         bool
	cpeIDs                                            []string
	repeatAfter                                       int

	titleSet, targetSet, modeSet, inputSet, datastreamIDSet, xccdfIDSet bool
	tailoringSet, profileSet, notBeforeSet, slipModeSet, remediateSet   bool
	cpeIDsSet, repeatAfterSet                                           bool
}

func (f *taskFlags) register(cmd *kingpin.CmdClause) {
	cmd.Flag("title", "Task title.").IsSetByUser(&f.titleSet).StringVar(&f.title)
	cmd.Flag("target", "Evaluation target (localhost, ssh://host:port, docker-image://name, docker-container://name, vm-domain://name, vm-image://path, chroot://path).").IsSetByUser(&f.targetSet).StringVar(&f.target)
	cmd.Flag("mode", "Evaluation mode (sds, oval, cve_scan, standard_scan).").IsSetByUser(&f.modeSet).StringVar(&f.mode)
	cmd.Flag("input", "SCAP content, an absolute path or the inline content. Empty clears it.").IsSetByUser(&f.inputSet).StringVar(&f.input)
	cmd.Flag("datastream-id", "Datastream of the input.").IsSetByUser(&f.datastreamIDSet).StringVar(&f.datastreamID)
	cmd.Flag("xccdf-id", "XCCDF component of the input.").IsSetByUser(&f.xccdfIDSet).StringVar(&f.xccdfID)
	cmd.Flag("tailoring", "Tailoring, an absolute path or the inline content. Empty clears it.").IsSetByUser(&f.tailoringSet).StringVar(&f.tailoring)
	cmd.Flag("profile", "Profile ID.").IsSetByUser(&f.profileSet).StringVar(&f.profile)
	cmd.Flag("remediate", "Remediate the failed rules during the evaluation.").IsSetByUser(&f.remediateSet).BoolVar(&f.remediate)
	cmd.Flag("cpe", "CPE ID selecting the CVE feed of cve_scan tasks (repeatable).").IsSetByUser(&f.cpeIDsSet).StringsVar(&f.cpeIDs)
	cmd.Flag("not-before", "Next run in UTC ("+model.ScheduleTimeLayout+" layout), 'now' or empty to stop scheduling.").IsSetByUser(&f.notBeforeSet).StringVar(&f.notBefore)
	cmd.Flag("repeat-after", "Hours between runs, 0 runs once.").IsSetByUser(&f.repeatAfterSet).IntVar(&f.repeatAfter)
	cmd.Flag("slip-mode", "Rescheduling after a run (no_slip, drop_missed, drop_missed_aligned).").IsSetByUser(&f.slipModeSet).StringVar(&f.slipMode)
}

// update returns the task update with the user flags, now resolves the 'now' not before.
func (f *taskFlags) update(now time.Time) (model.TaskUpdate, error) {
	var upd model.TaskUpdate
	if f.titleSet {
		upd.Title = &f.title
	}
	if f.targetSet {
		upd.Target = &f.target
	}
	if f.modeSet {
		upd.Mode = &f.mode
	}
	if f.inputSet {
		upd.Input = &f.input
	}
	if f.datastreamIDSet {
		upd.DatastreamID = &f.datastreamID
	}
	if f.xccdfIDSet {
		upd.XCCDFID = &f.xccdfID
	}
	if f.tailoringSet {
		upd.Tailoring = &f.tailoring
	}
	if f.profileSet {
		upd.ProfileID = &f.profile
	}
	if f.remediateSet {
		upd.OnlineRemediation = &f.remediate
	}
	if f.cpeIDsSet {
		upd.CPEIDs = &f.cpeIDs
	}
	if f.repeatAfterSet {
		upd.RepeatAfterHours = &f.repeatAfter
	}
	if f.slipModeSet {
		upd.SlipMode = &f.slipMode
	}

	if f.notBeforeSet {
		switch v := strings.TrimSpace(f.notBefore); v {
		case "":
			upd.ClearNotBefore = true
		case "now":
			upd.NotBefore = &now
		default:
			t, err := model.ParseScheduleTime(v)
			if err != nil {
				return model.TaskUpdate{}, fmt.Errorf("invalid not before: %w", err)
			}
			upd.NotBefore = &t
		}
	}

	return upd, nil
}
