package oscap_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/scapd/internal/conventions"
	"github.com/slok/scapd/internal/model"
	"github.com/slok/scapd/internal/oscap"
	"github.com/slok/scapd/internal/oscap/oscapmock"
)

// fakeTool writes a shell script that records its arguments in the working
// directory (`args` file), writes a results file and exits with exitCode.
func fakeTool(t *testing.T, dir, name string, exitCode int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools require a POSIX shell")
	}

	script := `#!/bin/sh
echo "$@" > args
echo "<results/>" > results.xml
echo "evaluating"
echo "warning" >&2
exit ` + strconv.Itoa(exitCode) + "\n"

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.TrimSpace(string(b))
}

func TestEvaluatorEvaluate(t *testing.T) {
	tests := map[string]struct {
		spec        model.EvaluationSpec
		toolName    string
		exitCode    int
		feedMock    func(m *oscapmock.MockFeedProvider)
		expArgs     func(wipDir string) string
		expExitCode int
		expErr      bool
	}{
		"A localhost SDS evaluation with every option should use oscap xccdf eval.": {
			spec: model.EvaluationSpec{
				Mode:   model.EvaluationModeSDS,
				Target: "localhost",
				Input: model.Input{
					Content:      model.Content{FilePath: "/content/ssg-rhel7-ds.xml"},
					DatastreamID: "ds1",
					XCCDFID:      "xccdf1",
				},
				Tailoring:         model.Content{FilePath: "/content/tailoring.xml"},
				ProfileID:         "p1",
				OnlineRemediation: true,
			},
			toolName:    "oscap",
			exitCode:    2,
			expExitCode: 2,
			expArgs: func(string) string {
				return "xccdf eval --datastream-id ds1 --xccdf-id xccdf1 --tailoring-file /content/tailoring.xml --profile p1 --results-arf results.xml --remediate /content/ssg-rhel7-ds.xml"
			},
		},

		"An SSH evaluation should use oscap-ssh with host and port.": {
			spec: model.EvaluationSpec{
				Mode:   model.EvaluationModeOVAL,
				Target: "ssh://server1",
				Input:  model.Input{Content: model.Content{FilePath: "/content/oval.xml"}},
			},
			toolName:    "oscap-ssh",
			exitCode:    0,
			expExitCode: 0,
			expArgs: func(string) string {
				return "server1 22 oval eval --results results.xml /content/oval.xml"
			},
		},

		"A docker image evaluation should use oscap-docker image.": {
			spec: model.EvaluationSpec{
				Mode:   model.EvaluationModeStandardScan,
				Target: "docker-image://fedora:40",
				Input:  model.Input{Content: model.Content{FilePath: "/content/ds.xml"}},
			},
			toolName:    "oscap-docker",
			exitCode:    0,
			expExitCode: 0,
			expArgs: func(string) string {
				return "image fedora:40 xccdf eval --profile xccdf_org.ssgproject.content_profile_standard --results-arf results.xml /content/ds.xml"
			},
		},

		"A chroot evaluation should use oscap-chroot with the path.": {
			spec: model.EvaluationSpec{
				Mode:   model.EvaluationModeOVAL,
				Target: "chroot:///mnt/root",
				Input:  model.Input{Content: model.Content{FilePath: "/content/oval.xml"}},
			},
			toolName:    "oscap-chroot",
			exitCode:    1,
			expExitCode: 1,
			expArgs: func(string) string {
				return "/mnt/root oval eval --results results.xml /content/oval.xml"
			},
		},

		"A CVE scan without input should use the CVE feed for the CPEs.": {
			spec: model.EvaluationSpec{
				Mode:   model.EvaluationModeCVEScan,
				Target: "localhost",
				CPEIDs: []string{"cpe:/o:redhat:enterprise_linux:7"},
			},
			toolName: "oscap",
			feedMock: func(m *oscapmock.MockFeedProvider) {
				m.On("GetForCPEs", mock.Anything, []string{"cpe:/o:redhat:enterprise_linux:7"}).Once().Return("/feeds/com.redhat.rhsa-RHEL7.xml", nil)
			},
			exitCode:    2,
			expExitCode: 2,
			expArgs: func(string) string {
				return "oval eval --results results.xml /feeds/com.redhat.rhsa-RHEL7.xml"
			},
		},

		"A standard scan without input should use the default content.": {
			spec:        model.EvaluationSpec{Mode: model.EvaluationModeStandardScan, Target: "localhost"},
			toolName:    "oscap",
			exitCode:    0,
			expExitCode: 0,
			expArgs: func(string) string {
				return "xccdf eval --profile xccdf_org.ssgproject.content_profile_standard --results-arf results.xml /content/default-ds.xml"
			},
		},

		"Inline input should be materialized in the evaluation directory.": {
			spec: model.EvaluationSpec{
				Mode:   model.EvaluationModeOVAL,
				Target: "localhost",
				Input:  model.Input{Content: model.Content{Contents: "<oval_definitions/>"}},
			},
			toolName:    "oscap",
			exitCode:    0,
			expExitCode: 0,
			expArgs: func(dir string) string {
				return "oval eval --results results.xml " + filepath.Join(dir, conventions.InputFile)
			},
		},

		"A target without its tool should fail.": {
			spec: model.EvaluationSpec{
				Mode:   model.EvaluationModeOVAL,
				Target: "vm-domain://rhel7",
				Input:  model.Input{Content: model.Content{FilePath: "/content/oval.xml"}},
			},
			toolName: "oscap",
			expErr:   true,
		},

		"An invalid spec should fail.": {
			spec:     model.EvaluationSpec{Mode: model.EvaluationModeSDS, Target: "localhost"},
			toolName: "oscap",
			expErr:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			assert := assert.New(t)

			binDir := t.TempDir()
			wipDir := filepath.Join(t.TempDir(), conventions.WorkInProgressDir)
			tool := fakeTool(t, binDir, test.toolName, test.exitCode)

			tools := oscap.Tools{}
			switch test.toolName {
			case "oscap":
				tools.OSCAP = tool
			case "oscap-ssh":
				tools.OSCAPSSH = tool
			case "oscap-docker":
				tools.OSCAPDocker = tool
			case "oscap-chroot":
				tools.OSCAPChroot = tool
			}

			feeds := &oscapmock.MockFeedProvider{}
			if test.feedMock != nil {
				test.feedMock(feeds)
			}

			e, err := oscap.NewEvaluator(oscap.EvaluatorConfig{
				Tools:             tools,
				WorkInProgressDir: wipDir,
				StandardScanInput: "/content/default-ds.xml",
				FeedProvider:      feeds,
			})
			require.NoError(err)

			ev, err := e.Evaluate(context.Background(), test.spec)

			if test.expErr {
				assert.ErrorIs(err, model.ErrNotValid)
				entries, _ := os.ReadDir(wipDir)
				assert.Empty(entries, "failed evaluations should not leave directories")
				return
			}
			require.NoError(err)
			feeds.AssertExpectations(t)

			assert.Equal(test.expExitCode, ev.ExitCode)
			assert.Equal(wipDir, filepath.Dir(ev.Dir))
			assert.Equal(test.expArgs(ev.Dir), readFile(t, filepath.Join(ev.Dir, "args")))
			assert.Equal("evaluating", readFile(t, filepath.Join(ev.Dir, conventions.ResultStdoutFile)))
			assert.Equal("warning", readFile(t, filepath.Join(ev.Dir, conventions.ResultStderrFile)))
			assert.NoFileExists(filepath.Join(ev.Dir, conventions.InputFile))

			res, err := oscap.ReadEvaluationResult(ev.Dir)
			require.NoError(err)
			assert.Equal(test.expExitCode, res.ExitCode)
			assert.Equal("<results/>\n", string(res.Artifact))
		})
	}
}

func TestEvaluatorEvaluateToolStartFailure(t *testing.T) {
	require := require.New(t)

	wipDir := t.TempDir()
	e, err := oscap.NewEvaluator(oscap.EvaluatorConfig{
		Tools:             oscap.Tools{OSCAP: filepath.Join(t.TempDir(), "missing-oscap")},
		WorkInProgressDir: wipDir,
	})
	require.NoError(err)

	ev, err := e.Evaluate(context.Background(), model.EvaluationSpec{
		Mode:   model.EvaluationModeOVAL,
		Target: "localhost",
		Input:  model.Input{Content: model.Content{FilePath: "/content/oval.xml"}},
	})
	require.NoError(err)
	require.Equal(model.ExitCodeError, ev.ExitCode)
	require.Equal("1", readFile(t, filepath.Join(ev.Dir, conventions.ResultExitCodeFile)))
}

func TestEvaluatorEvaluateCancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake tools require a POSIX shell")
	}
	require := require.New(t)

	binDir := t.TempDir()
	tool := filepath.Join(binDir, "oscap")
	require.NoError(os.WriteFile(tool, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755))

	wipDir := t.TempDir()
	e, err := oscap.NewEvaluator(oscap.EvaluatorConfig{
		Tools:             oscap.Tools{OSCAP: tool},
		WorkInProgressDir: wipDir,
		KillGracePeriod:   100 * time.Millisecond,
	})
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = e.Evaluate(ctx, model.EvaluationSpec{
		Mode:   model.EvaluationModeOVAL,
		Target: "localhost",
		Input:  model.Input{Content: model.Content{FilePath: "/content/oval.xml"}},
	})
	require.ErrorIs(err, context.DeadlineExceeded)

	entries, err := os.ReadDir(wipDir)
	require.NoError(err)
	require.Empty(entries)
}

func TestEvaluatorGenerateReport(t *testing.T) {
	require := require.New(t)

	binDir := t.TempDir()
	tool := filepath.Join(binDir, "oscap")
	if runtime.GOOS == "windows" {
		t.Skip("fake tools require a POSIX shell")
	}
	require.NoError(os.WriteFile(tool, []byte("#!/bin/sh\necho \"<html>$@</html>\"\n"), 0o755))

	resultDir := t.TempDir()
	require.NoError(os.WriteFile(filepath.Join(resultDir, conventions.ResultArtifactFile), []byte("<arf/>"), 0o644))

	e, err := oscap.NewEvaluator(oscap.EvaluatorConfig{Tools: oscap.Tools{OSCAP: tool}, WorkInProgressDir: t.TempDir()})
	require.NoError(err)

	report, err := e.GenerateReport(context.Background(), model.EvaluationSpec{Mode: model.EvaluationModeSDS}, resultDir)
	require.NoError(err)
	require.Equal("<html>xccdf generate report "+filepath.Join(resultDir, conventions.ResultArtifactFile)+"</html>\n", string(report))

	report, err = e.GenerateReport(context.Background(), model.EvaluationSpec{Mode: model.EvaluationModeCVEScan}, resultDir)
	require.NoError(err)
	require.Contains(string(report), "oval generate report")

	_, err = e.GenerateReport(context.Background(), model.EvaluationSpec{Mode: model.EvaluationModeSDS}, t.TempDir())
	require.ErrorIs(err, model.ErrNotFound)
}

func TestEvaluatorGenerateGuide(t *testing.T) {
	require := require.New(t)

	if runtime.GOOS == "windows" {
		t.Skip("fake tools require a POSIX shell")
	}
	tool := filepath.Join(t.TempDir(), "oscap")
	require.NoError(os.WriteFile(tool, []byte("#!/bin/sh\necho \"$@\"\n"), 0o755))

	e, err := oscap.NewEvaluator(oscap.EvaluatorConfig{Tools: oscap.Tools{OSCAP: tool}, WorkInProgressDir: t.TempDir()})
	require.NoError(err)

	guide, err := e.GenerateGuide(context.Background(), model.EvaluationSpec{
		Mode:      model.EvaluationModeSDS,
		Target:    "localhost",
		Input:     model.Input{Content: model.Content{FilePath: "/content/ds.xml"}},
		ProfileID: "p1",
	})
	require.NoError(err)
	require.Equal("xccdf generate guide --profile p1 /content/ds.xml\n", string(guide))

	_, err = e.GenerateGuide(context.Background(), model.EvaluationSpec{
		Mode:   model.EvaluationModeOVAL,
		Target: "localhost",
		Input:  model.Input{Content: model.Content{FilePath: "/content/oval.xml"}},
	})
	require.ErrorIs(err, model.ErrNotValid)
}

func TestProfileChoices(t *testing.T) {
	require := require.New(t)

	input := model.Content{Contents: `<?xml version="1.0"?>
<Benchmark xmlns="http://checklists.nist.gov/xccdf/1.2" id="b1">
  <Profile id="xccdf_org.ssgproject.content_profile_standard"><title>Standard</title></Profile>
  <Profile id="xccdf_org.ssgproject.content_profile_pci-dss"><title>PCI-DSS</title></Profile>
  <Profile><title>No ID</title></Profile>
</Benchmark>`}
	tailoring := model.Content{Contents: `<?xml version="1.0"?>
<Tailoring xmlns="http://checklists.nist.gov/xccdf/1.2" id="t1">
  <Profile id="xccdf_custom_profile_tailored"><title>Tailored</title></Profile>
</Tailoring>`}

	got, err := oscap.ProfileChoices(input, tailoring)
	require.NoError(err)
	require.Equal([]oscap.Profile{
		{ID: "xccdf_custom_profile_tailored", Title: "Tailored"},
		{ID: "xccdf_org.ssgproject.content_profile_pci-dss", Title: "PCI-DSS"},
		{ID: "xccdf_org.ssgproject.content_profile_standard", Title: "Standard"},
	}, got)
}
