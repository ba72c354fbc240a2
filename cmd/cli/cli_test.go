package main

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWith(t, nil, args...)
}

func TestRunInline(t *testing.T) {
	out, err := execute(t, "run", "-e", "echo hi")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)
}

func TestRunDefaultFixture(t *testing.T) {
	fx, err := loadFixture("")
	require.NoError(t, err)
	assert.Equal(t, "100000000000000001", fx.Context.UserID)
	assert.True(t, fx.Context.InGuild())
}

func TestCheck(t *testing.T) {
	out, err := executeWith(t, map[string]string{
		"/s/hello.sh": "! hello\n@ Say hello.\n|||\necho hi",
	}, "check", "/s")
	require.NoError(t, err)
	assert.Equal(t, "1 commands ok\n", out)

	_, err = executeWith(t, map[string]string{"/s/bad.sh": "! bad\necho"}, "check", "/s")
	assert.ErrorContains(t, err, "/s/bad.sh")
}

func TestCommandsListsDefined(t *testing.T) {
	out, err := executeWith(t, map[string]string{
		"/s/hello.sh": "! hello\n@ Say hello.\n|||\necho hi",
	}, "commands", "--scripts", "/s")
	require.NoError(t, err)
	assert.Contains(t, out, "echo")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "Say hello.")
}

// executeWith runs args against a memory filesystem holding files.
func executeWith(t *testing.T, files map[string]string, args ...string) (string, error) {
	t.Helper()
	mem := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(mem, name, []byte(body), 0o644))
	}
	scriptsDir, runScript, runFixture, runInputs, runWait = "", "", "", nil, 0
	fs = mem
	t.Cleanup(func() { fs = afero.NewOsFs() })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}
