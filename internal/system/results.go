package system

import (
	"context"
	"fmt"

	"github.com/slok/scapd/internal/conventions"
	"github.com/slok/scapd/internal/model"
)

// ListTaskResultIDs returns the result IDs of a task, newest first.
func (s *System) ListTaskResultIDs(ctx context.Context, taskID int) ([]int, error) {
	if _, err := s.entry(taskID); err != nil {
		return nil, err
	}

	return s.resultRepo.ListResultIDs(ctx, taskID)
}

// GetTaskResult returns the result metadata.
func (s *System) GetTaskResult(ctx context.Context, taskID, resultID int) (*model.Result, error) {
	return s.resultRepo.GetResult(ctx, taskID, resultID)
}

// GetTaskResultArtifact returns the results XML of a result.
func (s *System) GetTaskResultArtifact(ctx context.Context, taskID, resultID int) ([]byte, error) {
	return s.resultRepo.ReadResultFile(ctx, taskID, resultID, conventions.ResultArtifactFile)
}

// GetTaskResultStdout returns the tool output of a result.
func (s *System) GetTaskResultStdout(ctx context.Context, taskID, resultID int) ([]byte, error) {
	return s.resultRepo.ReadResultFile(ctx, taskID, resultID, conventions.ResultStdoutFile)
}

// GetTaskResultStderr returns the tool error output of a result.
func (s *System) GetTaskResultStderr(ctx context.Context, taskID, resultID int) ([]byte, error) {
	return s.resultRepo.ReadResultFile(ctx, taskID, resultID, conventions.ResultStderrFile)
}

// RemoveTaskResult deletes a single result.
func (s *System) RemoveTaskResult(ctx context.Context, taskID, resultID int) error {
	return s.resultRepo.DeleteResult(ctx, taskID, resultID)
}

// RemoveTaskResults deletes every result of a task.
func (s *System) RemoveTaskResults(ctx context.Context, taskID int) error {
	if s.IsTaskInFlight(taskID) {
		return fmt.Errorf("task %d is running: %w", taskID, model.ErrNotValid)
	}

	return s.resultRepo.DeleteResults(ctx, taskID)
}

// GenerateReportForTaskResult renders the HTML report of a task result.
func (s *System) GenerateReportForTaskResult(ctx context.Context, taskID, resultID int) ([]byte, error) {
	t, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	dir, err := s.resultRepo.ResultPath(ctx, taskID, resultID)
	if err != nil {
		return nil, err
	}

	return s.evaluator.GenerateReport(ctx, t.Spec, dir)
}

// GenerateGuideForTask renders the HTML guide of the task content and profile.
func (s *System) GenerateGuideForTask(ctx context.Context, taskID int) ([]byte, error) {
	t, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	return s.evaluator.GenerateGuide(ctx, t.Spec)
}
