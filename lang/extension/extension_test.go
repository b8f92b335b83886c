package extension

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/require"
)

func TestParseInitPayload(t *testing.T) {
	payload := `{
		"metadata": {"name": "dummy", "version": "1.2.3"},
		"outcome": {"fn_get_err": "outcome_get_err", "fn_get_ok": "outcome_get_ok", "fn_drop": "outcome_drop"},
		"dumped": {"fn_get_ptr": "dumped_get_ptr", "fn_get_len": "dumped_get_len", "fn_drop": "dumped_drop"},
		"string": {"fn_drop": "string_drop"},
		"resources": {
			"Dummy": {
				"fn_from_bytes": "Dummy_from_bytes",
				"fn_dump": "Dummy_dump",
				"fn_size": "Dummy_size",
				"fn_get_method_def": "Dummy_get_method",
				"fn_drop": "Dummy_drop"
			}
		}
	}`
	m, err := ParseInitPayload([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, "dummy", m.Metadata.Name)
	v, err := m.Metadata.SemVersion()
	require.NoError(t, err)
	require.Equal(t, "1.2.3", v.String())
	require.Contains(t, m.Resources, "Dummy")
	require.Equal(t, "Dummy_from_bytes", m.Resources["Dummy"].FnFromBytes)
}

func TestParseInitPayloadFailure(t *testing.T) {
	_, err := ParseInitPayload([]byte(`{"error": "missing native library"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing native library")

	_, err = ParseInitPayload([]byte(`not json`))
	require.Error(t, err)

	_, err = ParseInitPayload([]byte(`{"metadata": {"name": "x", "version": "abc"}}`))
	require.Error(t, err)
}

func TestValidNames(t *testing.T) {
	require.NoError(t, CheckName("dummy"))
	require.NoError(t, CheckName("light_gbm2"))
	for _, bad := range []string{"", "Dummy", "2fast", "with-dash", "with.dot", "UPPER"} {
		require.Error(t, CheckName(bad), "name %q", bad)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	ext := soExtension()
	for _, name := range []string{
		"dummy-1.0.0." + ext,
		"dummy-1.2.0." + ext,
		"dummy-2.0.0." + ext,
		"dummy-not.a.version." + ext,
		"other-1.0.0." + ext,
		"dummy-1.5.0.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	req, err := semver.NewConstraint("^1.0")
	require.NoError(t, err)

	version, path, err := resolveIn("dummy", req, []string{dir})
	require.NoError(t, err)
	require.Equal(t, "1.2.0", version.String())
	require.Equal(t, filepath.Join(dir, "dummy-1.2.0."+ext), path)

	// highest matching wins across requirements
	anyReq, err := semver.NewConstraint(">=1.0.0")
	require.NoError(t, err)
	version, _, err = resolveIn("dummy", anyReq, []string{dir})
	require.NoError(t, err)
	require.Equal(t, "2.0.0", version.String())

	// no match reports what was tried
	strict, err := semver.NewConstraint("^3.0")
	require.NoError(t, err)
	_, _, err = resolveIn("dummy", strict, []string{dir})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to resolve extension")

	_, _, err = resolveIn("absent", anyReq, []string{dir})
	require.Error(t, err)
}

func TestSearchDirsFromEnv(t *testing.T) {
	t.Setenv("JYAFN_PATH", "/a/b, /c/d ,")
	dirs := searchDirs()
	require.Equal(t, []string{"/a/b", "/c/d"}, dirs)
}

func TestCStringHelpers(t *testing.T) {
	buf := cString("abc")
	require.Equal(t, []byte{'a', 'b', 'c', 0}, buf)
	require.Equal(t, "abc", goString(bytesAddr(buf)))
	require.Equal(t, "", goString(0))
	require.Nil(t, copyBytes(0, 10))
}
