package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/scapd/internal/model"
)

func TestParseTarget(t *testing.T) {
	tests := map[string]struct {
		target    string
		expTarget model.Target
		expString string
		expErr    bool
	}{
		"Localhost.": {
			target:    "localhost",
			expTarget: model.Target{Kind: model.TargetKindLocalhost},
			expString: "localhost",
		},

		"SSH without port should use the default one.": {
			target:    "ssh://root@server1",
			expTarget: model.Target{Kind: model.TargetKindSSH, Name: "root@server1", Port: 22},
			expString: "ssh://root@server1:22",
		},

		"SSH with port.": {
			target:    "ssh://server1:2222",
			expTarget: model.Target{Kind: model.TargetKindSSH, Name: "server1", Port: 2222},
			expString: "ssh://server1:2222",
		},

		"SSH with an invalid port should fail.": {
			target: "ssh://server1:abc",
			expErr: true,
		},

		"Docker image.": {
			target:    "docker-image://fedora:40",
			expTarget: model.Target{Kind: model.TargetKindDockerImage, Name: "fedora:40"},
			expString: "docker-image://fedora:40",
		},

		"Docker container.": {
			target:    "docker-container://web",
			expTarget: model.Target{Kind: model.TargetKindDockerContainer, Name: "web"},
			expString: "docker-container://web",
		},

		"VM domain.": {
			target:    "vm-domain://rhel7",
			expTarget: model.Target{Kind: model.TargetKindVMDomain, Name: "rhel7"},
			expString: "vm-domain://rhel7",
		},

		"VM image.": {
			target:    "vm-image:///var/lib/libvirt/images/rhel7.qcow2",
			expTarget: model.Target{Kind: model.TargetKindVMImage, Name: "/var/lib/libvirt/images/rhel7.qcow2"},
			expString: "vm-image:///var/lib/libvirt/images/rhel7.qcow2",
		},

		"Chroot.": {
			target:    "chroot:///mnt/root",
			expTarget: model.Target{Kind: model.TargetKindChroot, Name: "/mnt/root"},
			expString: "chroot:///mnt/root",
		},

		"Missing name should fail.": {
			target: "docker-image://",
			expErr: true,
		},

		"Empty should fail.": {
			target: "",
			expErr: true,
		},

		"Unknown scheme should fail.": {
			target: "lxc://test",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			gotTarget, err := model.ParseTarget(test.target)

			if test.expErr {
				assert.ErrorIs(err, model.ErrNotValid)
				return
			}
			if assert.NoError(err) {
				assert.Equal(test.expTarget, gotTarget)
				assert.Equal(test.expString, gotTarget.String())
			}
		})
	}
}
