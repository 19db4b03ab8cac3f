package usermap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePasswdLine(t *testing.T) {
	info, ok := ParsePasswdLine("vscode:x:1000:1000:vscode:/home/vscode:/bin/bash")
	assert.True(t, ok)
	assert.Equal(t, "vscode", info.Username)
	assert.Equal(t, 1000, info.UID)
	assert.Equal(t, 1000, info.GID)
	assert.Equal(t, "/home/vscode", info.HomeDir)
	assert.Equal(t, "/bin/bash", info.Shell)
}

func TestParsePasswdLineRoot(t *testing.T) {
	info, ok := ParsePasswdLine("root:x:0:0:root:/root:/bin/bash")
	assert.True(t, ok)
	assert.Equal(t, 0, info.UID)
	assert.Equal(t, 0, info.GID)
}

func TestParsePasswdLineInvalid(t *testing.T) {
	_, ok := ParsePasswdLine("not-enough-fields:x:1000")
	assert.False(t, ok)

	_, ok = ParsePasswdLine("bad-uid:x:notanumber:1000::/home/bad:/bin/sh")
	assert.False(t, ok)
}

func TestParseContainerUser(t *testing.T) {
	name, uid, gid := ParseContainerUser("vscode")
	assert.Equal(t, "vscode", name)
	assert.Nil(t, uid)
	assert.Nil(t, gid)

	name, uid, gid = ParseContainerUser("1000")
	assert.Equal(t, "", name)
	require := *uid
	assert.Equal(t, 1000, require)
	assert.Nil(t, gid)

	name, uid, gid = ParseContainerUser("1000:1001")
	assert.Equal(t, "", name)
	assert.Equal(t, 1000, *uid)
	assert.Equal(t, 1001, *gid)

	name, uid, gid = ParseContainerUser("")
	assert.Equal(t, "", name)
	assert.Nil(t, uid)
	assert.Nil(t, gid)
}
