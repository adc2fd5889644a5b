package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	if Version == "dev" {
		return
	}
	semver := regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	require.True(t, semver.MatchString(Version), "got %s", Version)
}

func TestString_ContainsBuildInfo(t *testing.T) {
	// Given/When: formatting the version
	str := String()

	// Then: program name, version and platform are present
	assert.Contains(t, str, Name)
	assert.Contains(t, str, Version)
	assert.Contains(t, str, "commit")
	assert.Contains(t, str, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestGetInfo_MarshalsToJSON(t *testing.T) {
	// Given: build info
	info := GetInfo()

	// When: marshaling
	data, err := json.Marshal(info)
	require.NoError(t, err)

	// Then: keys use snake case and match the package variables
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Name, decoded["name"])
	assert.Equal(t, Version, decoded["version"])
	assert.Equal(t, GoVersion, decoded["go_version"])
	assert.Equal(t, runtime.GOARCH, decoded["arch"])
}

func TestShort_IsVersion(t *testing.T) {
	assert.Equal(t, Version, Short())
}
