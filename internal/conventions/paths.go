package conventions

import (
	"path/filepath"
	"strconv"
)

const (
	// DefaultDataDir is the default scapd data directory name (relative to home).
	DefaultDataDir = ".scapd"
	// DefaultConfigFile is the daemon config filename inside the data dir.
	DefaultConfigFile = "config.yaml"
	// TasksDir is the subdirectory for task definitions.
	TasksDir = "tasks"
	// ResultsDir is the subdirectory for stored task results.
	ResultsDir = "results"
	// WorkInProgressDir is the subdirectory for evaluations that didn't finish yet.
	// Anything found here on startup is a leftover of a crash.
	WorkInProgressDir = "work_in_progress"
	// FeedsDir is the subdirectory for the cached CVE feeds.
	FeedsDir = "feeds"
	// DaemonFile is where the running daemon publishes its API address.
	DaemonFile = "daemon.yaml"

	// TaskFileExt is the extension of task definition files (`<id>.yaml`).
	TaskFileExt = ".yaml"

	// Result-level files.

	// ResultArtifactFile is the filename of the raw results document written by the tool.
	ResultArtifactFile = "results.xml"
	// ResultStdoutFile is the filename of the tool standard output.
	ResultStdoutFile = "stdout"
	// ResultStderrFile is the filename of the tool standard error.
	ResultStderrFile = "stderr"
	// ResultExitCodeFile is the filename of the tool exit code.
	ResultExitCodeFile = "exit_code"

	// Evaluation scratch files.

	// InputFile is the filename inline input content is materialized to.
	InputFile = "input.xml"
	// TailoringFile is the filename inline tailoring content is materialized to.
	TailoringFile = "tailoring.xml"
)

// TasksPath returns the directory holding the task definitions.
func TasksPath(dataDir string) string {
	return filepath.Join(dataDir, TasksDir)
}

// TaskFilePath returns the path of a task definition file.
func TaskFilePath(dataDir string, taskID int) string {
	return filepath.Join(TasksPath(dataDir), strconv.Itoa(taskID)+TaskFileExt)
}

// ResultsPath returns the directory holding the results of every task.
func ResultsPath(dataDir string) string {
	return filepath.Join(dataDir, ResultsDir)
}

// TaskResultsPath returns the directory holding the results of a task.
func TaskResultsPath(dataDir string, taskID int) string {
	return filepath.Join(ResultsPath(dataDir), strconv.Itoa(taskID))
}

// ResultPath returns the directory of a single task result.
func ResultPath(dataDir string, taskID, resultID int) string {
	return filepath.Join(TaskResultsPath(dataDir, taskID), strconv.Itoa(resultID))
}

// WorkInProgressPath returns the directory for running evaluations.
func WorkInProgressPath(dataDir string) string {
	return filepath.Join(dataDir, WorkInProgressDir)
}

// FeedsPath returns the directory for the cached CVE feeds.
func FeedsPath(dataDir string) string {
	return filepath.Join(dataDir, FeedsDir)
}

// ConfigFilePath returns the default daemon config path.
func ConfigFilePath(dataDir string) string {
	return filepath.Join(dataDir, DefaultConfigFile)
}

// DaemonFilePath returns the path of the running daemon file.
func DaemonFilePath(dataDir string) string {
	return filepath.Join(dataDir, DaemonFile)
}
