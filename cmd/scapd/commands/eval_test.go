package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scapd/internal/model"
)

func TestSpecFlags(t *testing.T) {
	tests := map[string]struct {
		flags   specFlags
		expSpec model.EvaluationSpec
		expErr  bool
	}{
		"A datastream path on localhost should be a file input.": {
			flags: specFlags{target: "localhost", mode: "sds", input: "/usr/share/ds.xml", profile: "p1"},
			expSpec: model.EvaluationSpec{
				Mode:      model.EvaluationModeSDS,
				Target:    "localhost",
				Input:     model.Input{Content: model.Content{FilePath: "/usr/share/ds.xml"}},
				ProfileID: "p1",
			},
		},
		"A CVE scan with CPEs doesn't need an input.": {
			flags: specFlags{target: "localhost", mode: "cve_scan", cpeIDs: []string{"cpe:/o:redhat:enterprise_linux:7"}},
			expSpec: model.EvaluationSpec{
				Mode:   model.EvaluationModeCVEScan,
				Target: "localhost",
				CPEIDs: []string{"cpe:/o:redhat:enterprise_linux:7"},
			},
		},
		"A standard scan doesn't need an input.": {
			flags: specFlags{target: "localhost", mode: "standard_scan"},
			expSpec: model.EvaluationSpec{
				Mode:   model.EvaluationModeStandardScan,
				Target: "localhost",
			},
		},
		"An unknown mode should fail.": {
			flags:  specFlags{target: "localhost", mode: "wrong", input: "/ds.xml"},
			expErr: true,
		},
		"An unknown target should fail.": {
			flags:  specFlags{target: "ftp://host", mode: "sds", input: "/ds.xml"},
			expErr: true,
		},
		"A missing input should fail.": {
			flags:  specFlags{target: "localhost", mode: "oval"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			spec, err := test.flags.spec()

			if test.expErr {
				assert.Error(err)
				return
			}
			require.NoError(t, err)
			assert.Equal(test.expSpec, spec)
		})
	}
}

func TestExitCodeError(t *testing.T) {
	assert.Equal(t, "evaluation finished with status non-compliant", ExitCodeError{Code: model.ExitCodeNonCompliant}.Error())
}
