package testutils

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

var multiSpaceRegex = regexp.MustCompile(" +")

// RunScapd executes a scapd command with the given arguments string (split by spaces).
// Use RunScapdArgs when arguments contain spaces that should be preserved.
func RunScapd(ctx context.Context, env []string, binary, cmdArgs string, nolog bool) (stdout, stderr []byte, err error) {
	cmdArgs = strings.TrimSpace(cmdArgs)
	cmdArgs = multiSpaceRegex.ReplaceAllString(cmdArgs, " ")

	var args []string
	if cmdArgs != "" {
		args = strings.Split(cmdArgs, " ")
	}

	return RunScapdArgs(ctx, env, binary, args, nolog)
}

// RunScapdArgs executes a scapd command with pre-split arguments.
func RunScapdArgs(ctx context.Context, env []string, binary string, args []string, nolog bool) (stdout, stderr []byte, err error) {
	var outData, errData bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &outData
	cmd.Stderr = &errData

	// The last duplicated env key wins.
	newEnv := append([]string{}, os.Environ()...)
	newEnv = append(newEnv, env...)
	if nolog {
		newEnv = append(newEnv, "SCAPD_NO_LOG=true")
	}
	cmd.Env = newEnv

	err = cmd.Run()

	return outData.Bytes(), errData.Bytes(), err
}

// StartScapdArgs starts a scapd command in the background, the caller waits for it.
func StartScapdArgs(ctx context.Context, env []string, binary string, args []string, nolog bool) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(append([]string{}, os.Environ()...), env...)
	if nolog {
		cmd.Env = append(cmd.Env, "SCAPD_NO_LOG=true")
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return cmd, nil
}
