package function

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v6"
)

// Config locates the backend toolchain. Each binary can be overridden
// through the environment; the defaults rely on PATH lookup.
type Config struct {
	QBE string `env:"JYAFN_QBE" envDefault:"qbe"`
	AS  string `env:"JYAFN_AS" envDefault:"as"`
	LD  string `env:"JYAFN_LD" envDefault:"ld"`
}

// LoadConfig decodes the toolchain configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// A ToolError reports a backend tool that refused the input; the tool's
// diagnostics are carried verbatim.
type ToolError struct {
	Tool   string
	Status int
	Stderr string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Tool, e.Status, e.Stderr)
}

func runTool(name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, &ToolError{Tool: name, Status: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("running %s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// createAssembly pipes the rendered IR module through the qbe backend and
// returns host assembly.
func createAssembly(cfg Config, rendered string) (string, error) {
	out, err := runTool(cfg.QBE, nil, []byte(rendered))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// assemble runs the system assembler over the assembly text and returns the
// object file bytes.
func assemble(cfg Config, assembly string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "jyafn-as")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	objPath := filepath.Join(dir, "main.o")
	if _, err := runTool(cfg.AS, []string{"-o", objPath}, []byte(assembly)); err != nil {
		return nil, err
	}
	return os.ReadFile(objPath)
}

// link turns the object file into a shared object and returns its bytes.
func link(cfg Config, object []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "jyafn-ld")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	objPath := filepath.Join(dir, "main.o")
	soPath := filepath.Join(dir, "main.so")
	if err := os.WriteFile(objPath, object, 0o644); err != nil {
		return nil, err
	}

	var args []string
	if runtime.GOOS == "darwin" {
		args = []string{"-demangle", "-dylib",
			"-L", "/Library/Developer/CommandLineTools/SDKs/MacOSX.sdk/usr/lib",
			"-lSystem", "-o", soPath, objPath}
	} else {
		args = []string{"-shared", objPath, "-o", soPath}
	}
	if _, err := runTool(cfg.LD, args, nil); err != nil {
		return nil, err
	}
	return os.ReadFile(soPath)
}
