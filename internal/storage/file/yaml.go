package file

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/scapd/internal/model"
)

// TaskV1 represents the YAML structure of a persisted task.
// The task ID is not stored, it comes from the file name.
type TaskV1 struct {
	Title          string           `yaml:"title,omitempty"`
	Enabled        bool             `yaml:"enabled"`
	EvaluationSpec EvaluationSpecV1 `yaml:"evaluation_spec"`
	Schedule       ScheduleV1       `yaml:"schedule"`
}

// EvaluationSpecV1 represents the YAML structure of an evaluation spec.
type EvaluationSpecV1 struct {
	Mode              string     `yaml:"mode"`
	Target            string     `yaml:"target"`
	Input             *InputV1   `yaml:"input,omitempty"`
	Tailoring         *ContentV1 `yaml:"tailoring,omitempty"`
	ProfileID         string     `yaml:"profile,omitempty"`
	OnlineRemediation bool       `yaml:"online_remediation"`
	CPEIDs            []string   `yaml:"cpe_ids,omitempty"`
}

// ContentV1 represents SCAP content, by file reference or inline.
type ContentV1 struct {
	File     string `yaml:"file,omitempty"`
	Contents string `yaml:"contents,omitempty"`
}

// InputV1 represents the YAML structure of the evaluation input.
type InputV1 struct {
	ContentV1    `yaml:",inline"`
	DatastreamID string `yaml:"datastream_id,omitempty"`
	XCCDFID      string `yaml:"xccdf_id,omitempty"`
}

// ScheduleV1 represents the YAML structure of a task schedule.
type ScheduleV1 struct {
	NotBefore        string `yaml:"not_before,omitempty"`
	RepeatAfterHours int    `yaml:"repeat_after_hours,omitempty"`
	SlipMode         string `yaml:"slip_mode"`
}

func marshalTask(t model.Task) ([]byte, error) {
	s := t.Spec
	v := TaskV1{
		Title:   t.Title,
		Enabled: t.Enabled,
		EvaluationSpec: EvaluationSpecV1{
			Mode:              string(s.EffectiveMode()),
			Target:            s.Target,
			ProfileID:         s.ProfileID,
			OnlineRemediation: s.OnlineRemediation,
			CPEIDs:            s.CPEIDs,
		},
		Schedule: ScheduleV1{
			RepeatAfterHours: t.Schedule.RepeatAfterHours,
			SlipMode:         string(t.Schedule.SlipMode),
		},
	}

	if s.Input.IsSet() || s.Input.DatastreamID != "" || s.Input.XCCDFID != "" {
		v.EvaluationSpec.Input = &InputV1{
			ContentV1:    contentToV1(s.Input.Content),
			DatastreamID: s.Input.DatastreamID,
			XCCDFID:      s.Input.XCCDFID,
		}
	}
	if s.Tailoring.IsSet() {
		c := contentToV1(s.Tailoring)
		v.EvaluationSpec.Tailoring = &c
	}
	if v.Schedule.SlipMode == "" {
		v.Schedule.SlipMode = string(model.DefaultSlipMode)
	}
	if nb := t.Schedule.NotBefore; nb != nil {
		v.Schedule.NotBefore = nb.UTC().Format(model.ScheduleTimeLayout)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("could not marshal YAML: %w", err)
	}

	return data, nil
}

func unmarshalTask(id int, data []byte) (*model.Task, error) {
	var v TaskV1
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	mode, err := model.ParseEvaluationMode(v.EvaluationSpec.Mode)
	if err != nil {
		return nil, err
	}

	slipMode, err := model.ParseSlipMode(v.Schedule.SlipMode)
	if err != nil {
		return nil, err
	}

	target := v.EvaluationSpec.Target
	if target == "" {
		target = model.DefaultTarget
	}

	t := model.Task{
		ID:      id,
		Title:   v.Title,
		Enabled: v.Enabled,
		Spec: model.EvaluationSpec{
			Mode:              mode,
			Target:            target,
			ProfileID:         v.EvaluationSpec.ProfileID,
			OnlineRemediation: v.EvaluationSpec.OnlineRemediation,
			CPEIDs:            v.EvaluationSpec.CPEIDs,
		},
		Schedule: model.Schedule{
			RepeatAfterHours: v.Schedule.RepeatAfterHours,
			SlipMode:         slipMode,
		},
	}

	if in := v.EvaluationSpec.Input; in != nil {
		t.Spec.Input = model.Input{
			Content:      in.ContentV1.toModel(),
			DatastreamID: in.DatastreamID,
			XCCDFID:      in.XCCDFID,
		}
	}
	if tl := v.EvaluationSpec.Tailoring; tl != nil {
		t.Spec.Tailoring = tl.toModel()
	}
	if v.Schedule.NotBefore != "" {
		nb, err := model.ParseScheduleTime(v.Schedule.NotBefore)
		if err != nil {
			return nil, err
		}
		t.Schedule.NotBefore = &nb
	}

	if err := t.Schedule.Validate(); err != nil {
		return nil, err
	}

	return &t, nil
}

func contentToV1(c model.Content) ContentV1 {
	return ContentV1{File: c.FilePath, Contents: c.Contents}
}

func (c ContentV1) toModel() model.Content {
	if c.File != "" {
		return model.Content{FilePath: c.File}
	}
	return model.Content{Contents: c.Contents}
}

// DaemonV1 represents the YAML structure of the running daemon file.
type DaemonV1 struct {
	Address   string `yaml:"address"`
	PID       int    `yaml:"pid"`
	StartedAt string `yaml:"started_at"`
}

func marshalDaemonInfo(d model.DaemonInfo) ([]byte, error) {
	data, err := yaml.Marshal(DaemonV1{
		Address:   d.Address,
		PID:       d.PID,
		StartedAt: d.StartedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("could not marshal daemon info: %w", err)
	}

	return data, nil
}

func unmarshalDaemonInfo(data []byte) (*model.DaemonInfo, error) {
	var v DaemonV1
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("could not unmarshal daemon info: %w", err)
	}
	if v.Address == "" {
		return nil, fmt.Errorf("daemon address is missing: %w", model.ErrNotValid)
	}

	d := &model.DaemonInfo{Address: v.Address, PID: v.PID}
	if v.StartedAt != "" {
		t, err := time.Parse(time.RFC3339, v.StartedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid daemon start time %q: %w", v.StartedAt, model.ErrNotValid)
		}
		d.StartedAt = t
	}

	return d, nil
}
