// Package golden compares test output against checked-in golden files, with
// a flag to regenerate them from the current output.
package golden

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/kylelemons/godebug/diff"
)

var update = flag.Bool("test.update-golden-files", false, "If set, rewrites the golden files with the current output.")

// Diff validates that output matches the golden file named name+".want"
// under dir. When the update flag is set, it rewrites the golden file with
// output instead.
func Diff(t *testing.T, dir, name, output string) {
	t.Helper()

	goldFile := filepath.Join(dir, name+".want")
	if *update {
		if err := os.WriteFile(goldFile, []byte(output), 0o600); err != nil {
			t.Fatal(err)
		}
		return
	}

	wantb, err := os.ReadFile(goldFile)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	want := string(wantb)
	if patch := diff.Diff(want, output); patch != "" {
		t.Errorf("diff %s:\n%s\n", name, patch)
	}
}
