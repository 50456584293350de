package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSecretFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolve_SourceCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		source  Source
		wantErr error
	}{
		{name: "no source", source: Source{}, wantErr: ErrNoSource},
		{name: "value and env", source: Source{Value: Ptr("a"), Env: Ptr("B")}, wantErr: ErrMultipleSources},
		{name: "env and file", source: Source{Env: Ptr("B"), File: Ptr("/tmp/x")}, wantErr: ErrMultipleSources},
		{name: "all three", source: Source{Value: Ptr("a"), Env: Ptr("B"), File: Ptr("/tmp/x")}, wantErr: ErrMultipleSources},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Resolve("API key k1 secret 0", tt.source)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, "API key k1 secret 0", cfgErr.Label)
			assert.Contains(t, err.Error(), "API key k1 secret 0")
		})
	}
}

func TestResolve_InlineValue(t *testing.T) {
	t.Parallel()

	got, err := Resolve("label", Source{Value: Ptr("s3cr3t")})
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cr3t"), got)
}

func TestResolve_EmptyInlineValueCountsAsSet(t *testing.T) {
	t.Parallel()

	got, err := Resolve("label", Source{Value: Ptr("")})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Resolve("label", Source{Value: Ptr(""), File: Ptr("x")})
	assert.ErrorIs(t, err, ErrMultipleSources)
}

func TestResolve_File(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "single newline stripped", content: "abc\n", want: "abc"},
		{name: "crlf stripped", content: "abc\r\n", want: "abc"},
		{name: "only one newline stripped", content: "abc\n\n", want: "abc\n"},
		{name: "surrounding spaces kept", content: "  abc  \n", want: "  abc  "},
		{name: "no newline", content: "abc", want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeSecretFile(t, tt.content)
			got, err := Resolve("label", Source{File: Ptr(path)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestResolve_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Resolve("label", Source{File: Ptr(filepath.Join(t.TempDir(), "missing"))})
	require.Error(t, err)

	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestResolve_Env(t *testing.T) {
	t.Setenv("SITEGATE_TEST_SECRET", "from-env")

	got, err := Resolve("label", Source{Env: Ptr("SITEGATE_TEST_SECRET")})
	require.NoError(t, err)
	assert.Equal(t, "from-env", string(got))
}

func TestResolve_EnvFileIndirection(t *testing.T) {
	path := writeSecretFile(t, "mounted\n")
	t.Setenv("SITEGATE_TEST_MOUNTED", "")
	t.Setenv("SITEGATE_TEST_MOUNTED_FILE", path)

	got, err := Resolve("label", Source{Env: Ptr("SITEGATE_TEST_MOUNTED")})
	require.NoError(t, err)
	assert.Equal(t, "mounted", string(got))
}

func TestResolve_EnvDirectWinsOverFile(t *testing.T) {
	path := writeSecretFile(t, "mounted")
	t.Setenv("SITEGATE_TEST_BOTH", "direct")
	t.Setenv("SITEGATE_TEST_BOTH_FILE", path)

	got, err := Resolve("label", Source{Env: Ptr("SITEGATE_TEST_BOTH")})
	require.NoError(t, err)
	assert.Equal(t, "direct", string(got))
}

func TestResolve_EnvUndefined(t *testing.T) {
	t.Setenv("SITEGATE_TEST_UNSET", "")

	_, err := Resolve("API key k9 secret 1", Source{Env: Ptr("SITEGATE_TEST_UNSET")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnvNotDefined)
	assert.Contains(t, err.Error(), "SITEGATE_TEST_UNSET")
	assert.Contains(t, err.Error(), "API key k9 secret 1")
}

func TestSourceKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SourceValue, Source{Value: Ptr("x")}.Kind())
	assert.Equal(t, SourceEnv, Source{Env: Ptr("X")}.Kind())
	assert.Equal(t, SourceFile, Source{File: Ptr("/x")}.Kind())
	assert.Empty(t, Source{}.Kind())
	assert.Empty(t, Source{Value: Ptr("x"), Env: Ptr("X")}.Kind())
}

func TestDescribe_NeverLeaksValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "inline value", Describe(Source{Value: Ptr("s3cr3t")}))
	assert.Equal(t, "env NAME", Describe(Source{Env: Ptr("NAME")}))
	assert.Equal(t, "file /run/secret", Describe(Source{File: Ptr("/run/secret")}))
	assert.Equal(t, "invalid source", Describe(Source{}))
}

func TestWipe(t *testing.T) {
	t.Parallel()

	buf := []byte("s3cr3t")
	Wipe(buf)
	assert.Equal(t, make([]byte, 6), buf)

	assert.NotPanics(t, func() { Wipe(nil) })
}
