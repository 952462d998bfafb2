package api

import (
	"github.com/slok/scapd/internal/model"
)

// TaskUpdateRequest is the body used to create and update tasks, missing fields are kept.
type TaskUpdateRequest struct {
	Enabled           *bool     `json:"enabled,omitempty"`
	Title             *string   `json:"title,omitempty"`
	Target            *string   `json:"target,omitempty"`
	Mode              *string   `json:"mode,omitempty"`
	Input             *string   `json:"input,omitempty"`
	DatastreamID      *string   `json:"datastream_id,omitempty"`
	XCCDFID           *string   `json:"xccdf_id,omitempty"`
	Tailoring         *string   `json:"tailoring,omitempty"`
	ProfileID         *string   `json:"profile_id,omitempty"`
	OnlineRemediation *bool     `json:"online_remediation,omitempty"`
	CPEIDs            *[]string `json:"cpe_ids,omitempty"`
	// NotBefore uses model.ScheduleTimeLayout, an empty value stops the scheduling.
	NotBefore        *string `json:"not_before,omitempty"`
	RepeatAfterHours *int    `json:"repeat_after_hours,omitempty"`
	SlipMode         *string `json:"slip_mode,omitempty"`
}

// NewTaskUpdateRequest maps a task update to its request body.
func NewTaskUpdateRequest(upd model.TaskUpdate) TaskUpdateRequest {
	req := TaskUpdateRequest{
		Enabled:           upd.Enabled,
		Title:             upd.Title,
		Target:            upd.Target,
		Mode:              upd.Mode,
		Input:             upd.Input,
		DatastreamID:      upd.DatastreamID,
		XCCDFID:           upd.XCCDFID,
		Tailoring:         upd.Tailoring,
		ProfileID:         upd.ProfileID,
		OnlineRemediation: upd.OnlineRemediation,
		CPEIDs:            upd.CPEIDs,
		RepeatAfterHours:  upd.RepeatAfterHours,
		SlipMode:          upd.SlipMode,
	}

	switch {
	case upd.ClearNotBefore:
		empty := ""
		req.NotBefore = &empty
	case upd.NotBefore != nil:
		nb := upd.NotBefore.UTC().Format(model.ScheduleTimeLayout)
		req.NotBefore = &nb
	}

	return req
}

// ToModel maps the request body to a task update.
func (r TaskUpdateRequest) ToModel() (model.TaskUpdate, error) {
	upd := model.TaskUpdate{
		Enabled:           r.Enabled,
		Title:             r.Title,
		Target:            r.Target,
		Mode:              r.Mode,
		Input:             r.Input,
		DatastreamID:      r.DatastreamID,
		XCCDFID:           r.XCCDFID,
		Tailoring:         r.Tailoring,
		ProfileID:         r.ProfileID,
		OnlineRemediation: r.OnlineRemediation,
		CPEIDs:            r.CPEIDs,
		RepeatAfterHours:  r.RepeatAfterHours,
		SlipMode:          r.SlipMode,
	}

	if r.NotBefore != nil {
		if *r.NotBefore == "" {
			upd.ClearNotBefore = true
		} else {
			nb, err := model.ParseScheduleTime(*r.NotBefore)
			if err != nil {
				return model.TaskUpdate{}, err
			}
			upd.NotBefore = &nb
		}
	}

	return upd, nil
}

// CreateTaskResponse is the response of a task creation.
type CreateTaskResponse struct {
	ID int `json:"id"`
}

// TaskStateResponse tells if a task run is pending.
type TaskStateResponse struct {
	RunRequested bool `json:"run_requested"`
	InFlight     bool `json:"in_flight"`
}

// ErrorResponse is the body of the failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
