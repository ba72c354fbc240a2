package loader

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/pkg/cmd"
)

func writeFiles(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}
	return fs
}

func TestLoad(t *testing.T) {
	fs := writeFiles(t, map[string]string{
		"/scripts/hello.sh":       "! hello\n@ Say hello.\n; name\n|||\necho \"hi $name\"",
		"/scripts/games/coin.sh":  "! coin\n|||\nchoice heads tails",
		"/scripts/README.md":      "not a script",
		"/elsewhere/ignored.sh":   "! ignored\n|||\necho no",
		"/scripts/nested/deep.sh": "! deep\n|||\necho deep",
	})

	var wrapped []string
	mw := func(c cmd.Command) cmd.Command {
		wrapped = append(wrapped, c.Name())
		return c
	}

	reg := cmd.NewRegistry()
	descs, err := Load(fs, "/scripts", reg, mw)
	require.NoError(t, err)

	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"coin", "deep", "hello"}, names)
	assert.Equal(t, []string{"coin", "deep", "hello"}, wrapped)
	assert.Equal(t, 3, reg.Len())
	require.NotNil(t, reg.Get("hello"))
	assert.Equal(t, "Say hello.", reg.Get("hello").Description())
	assert.Nil(t, reg.Get("ignored"))
}

func TestLoadErrorsNameTheFile(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			"header error",
			map[string]string{"/s/bad.sh": "! bad\n; x | nargs=lots\n|||\necho"},
			"/s/bad.sh",
		},
		{
			"body error",
			map[string]string{"/s/body.sh": "! body\n|||\nif then fi ("},
			"/s/body.sh",
		},
		{
			"missing separator",
			map[string]string{"/s/sep.sh": "! sep\necho"},
			"/s/sep.sh",
		},
		{
			"duplicate name",
			map[string]string{
				"/s/a.sh": "! same\n|||\necho a",
				"/s/b.sh": "! same\n|||\necho b",
			},
			`command "same" defined in both /s/a.sh and /s/b.sh`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := cmd.NewRegistry()
			_, err := Load(writeFiles(t, tt.files), "/s", reg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Zero(t, reg.Len(), "nothing registered on failure")
		})
	}
}

func TestLoadDefinitionErrorKind(t *testing.T) {
	fs := writeFiles(t, map[string]string{"/s/bad.sh": "! bad\n; x | nargs=lots\n|||\necho"})
	_, err := Scan(fs, "/s")
	assert.True(t, shellerr.Is(err, shellerr.DefinitionSyntaxError))
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "/nope", cmd.NewRegistry())
	assert.Error(t, err)
}

type fixed string

func (f fixed) Name() string                               { return string(f) }
func (f fixed) Description() string                        { return "" }
func (f fixed) Run(context.Context, *cmd.Invocation) error { return nil }

func TestLoadConflictsWithRegistered(t *testing.T) {
	fs := writeFiles(t, map[string]string{
		"/s/a.sh":     "! alpha\n|||\necho a",
		"/s/taken.sh": "! taken\n|||\necho b",
	})
	reg := cmd.NewRegistry()
	require.NoError(t, reg.Register(fixed("taken")))

	_, err := Load(fs, "/s", reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"taken" already registered`)
	assert.Nil(t, reg.Get("alpha"))
}

func TestReload(t *testing.T) {
	fs := writeFiles(t, map[string]string{"/s/a.sh": "! alpha\n|||\necho a"})
	reg := cmd.NewRegistry()
	_, err := Load(fs, "/s", reg)
	require.NoError(t, err)

	require.NoError(t, fs.Remove("/s/a.sh"))
	require.NoError(t, afero.WriteFile(fs, "/s/b.sh", []byte("! beta\n|||\necho b"), 0o644))
	_, err = Reload(fs, "/s", reg)
	require.NoError(t, err)
	assert.Nil(t, reg.Get("alpha"))
	assert.NotNil(t, reg.Get("beta"))

	require.NoError(t, afero.WriteFile(fs, "/s/c.sh", []byte("! broken"), 0o644))
	_, err = Reload(fs, "/s", reg)
	require.Error(t, err)
	assert.NotNil(t, reg.Get("beta"), "a failed reload keeps the old commands")
}
