package model_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scapd/internal/model"
)

func TestEvaluationSpecValidate(t *testing.T) {
	tests := map[string]struct {
		spec   model.EvaluationSpec
		expErr bool
	}{
		"A valid SDS spec should not fail.": {
			spec: model.EvaluationSpec{
				Mode:   model.EvaluationModeSDS,
				Target: "localhost",
				Input:  model.Input{Content: model.Content{FilePath: "/usr/share/xml/scap/ssg/content/ssg-rhel7-ds.xml"}},
			},
		},

		"Missing input should fail.": {
			spec:   model.EvaluationSpec{Mode: model.EvaluationModeSDS, Target: "localhost"},
			expErr: true,
		},

		"Missing target should fail.": {
			spec: model.EvaluationSpec{
				Mode:  model.EvaluationModeOVAL,
				Input: model.Input{Content: model.Content{Contents: "<oval/>"}},
			},
			expErr: true,
		},

		"Unknown target should fail.": {
			spec: model.EvaluationSpec{
				Mode:   model.EvaluationModeOVAL,
				Target: "nope://x",
				Input:  model.Input{Content: model.Content{Contents: "<oval/>"}},
			},
			expErr: true,
		},

		"Unknown mode should fail.": {
			spec: model.EvaluationSpec{
				Mode:   "wrong",
				Target: "localhost",
				Input:  model.Input{Content: model.Content{Contents: "<oval/>"}},
			},
			expErr: true,
		},

		"A CVE scan with CPE IDs doesn't need input.": {
			spec: model.EvaluationSpec{
				Mode:   model.EvaluationModeCVEScan,
				Target: "docker-image://fedora",
				CPEIDs: []string{"cpe:/o:redhat:enterprise_linux:7"},
			},
		},

		"A CVE scan without CPE IDs or input should fail.": {
			spec:   model.EvaluationSpec{Mode: model.EvaluationModeCVEScan, Target: "localhost"},
			expErr: true,
		},

		"A standard scan doesn't need input.": {
			spec: model.EvaluationSpec{Mode: model.EvaluationModeStandardScan, Target: "localhost"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			err := test.spec.Validate()

			if test.expErr {
				assert.ErrorIs(err, model.ErrNotValid)
			} else {
				assert.NoError(err)
			}
		})
	}
}

func TestContentFromValue(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(model.Content{}, model.ContentFromValue(""))
	assert.Equal(model.Content{FilePath: "/tmp/ds.xml"}, model.ContentFromValue("/tmp/../tmp/ds.xml"))
	assert.Equal(model.Content{Contents: "<Benchmark/>"}, model.ContentFromValue("<Benchmark/>"))
}

func TestContentIsEquivalentTo(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "input.xml")
	require.NoError(os.WriteFile(path, []byte("<Benchmark/>"), 0o600))

	file := model.Content{FilePath: path}
	inline := model.Content{Contents: "<Benchmark/>"}
	other := model.Content{Contents: "<Other/>"}

	require.True(file.IsEquivalentTo(inline))
	require.True(inline.IsEquivalentTo(file))
	require.False(inline.IsEquivalentTo(other))
	require.False(inline.IsEquivalentTo(model.Content{}))
	require.True(model.Content{}.IsEquivalentTo(model.Content{}))
}
