package extension

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/caarlos0/env/v6"
)

// Config is the environment-driven configuration of the extension loader.
type Config struct {
	// Path is a comma-separated list of directories scanned for extension
	// shared objects. When empty, the user-default directory is used.
	Path string `env:"JYAFN_PATH"`
}

// LoadConfig decodes the loader configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// soExtension is the shared object suffix of the host platform.
func soExtension() string {
	switch runtime.GOOS {
	case "darwin":
		return "dylib"
	case "windows":
		return "dll"
	}
	return "so"
}

var validName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// CheckName checks an extension name against the allowed pattern.
func CheckName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("extension name %q is invalid", name)
	}
	return nil
}

// searchDirs returns the directories to scan, honoring JYAFN_PATH and
// falling back to ~/.jyafn/extensions.
func searchDirs() []string {
	cfg, err := LoadConfig()
	if err == nil && cfg.Path != "" {
		parts := strings.Split(cfg.Path, ",")
		dirs := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				dirs = append(dirs, p)
			}
		}
		return dirs
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".jyafn", "extensions")}
}

// Resolve maps an extension name and a semver requirement to the concrete
// file providing the highest matching version. Files are expected to be
// named {name}-{version}.{so|dylib|dll}.
func Resolve(name string, req *semver.Constraints) (*semver.Version, string, error) {
	return resolveIn(name, req, searchDirs())
}

func resolveIn(name string, req *semver.Constraints, dirs []string) (*semver.Version, string, error) {
	if err := CheckName(name); err != nil {
		return nil, "", err
	}

	ext := "." + soExtension()
	var tried []string
	var bestVersion *semver.Version
	var bestPath string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			fname := entry.Name()
			if !strings.HasPrefix(fname, name+"-") || !strings.HasSuffix(fname, ext) {
				continue
			}
			versionPart := strings.TrimSuffix(strings.TrimPrefix(fname, name+"-"), ext)
			version, err := semver.StrictNewVersion(versionPart)
			if err != nil {
				tried = append(tried, filepath.Join(dir, fname))
				continue
			}
			if !req.Check(version) {
				tried = append(tried, filepath.Join(dir, fname))
				continue
			}
			if bestVersion == nil || version.GreaterThan(bestVersion) {
				bestVersion = version
				bestPath = filepath.Join(dir, fname)
			}
		}
	}
	if bestVersion != nil {
		return bestVersion, bestPath, nil
	}

	return nil, "", fmt.Errorf("failed to resolve extension %q (tried %s)",
		name, strings.Join(tried, ", "))
}

// TryGet resolves and loads an extension, returning the cached instance when
// the same name and version were loaded before. The advertised name and
// version must match the resolved file name.
func TryGet(name string, req *semver.Constraints) (*Extension, error) {
	version, path, err := Resolve(name, req)
	if err != nil {
		return nil, err
	}

	regMu.Lock()
	defer regMu.Unlock()
	versions := loaded[name]
	if versions == nil {
		versions = make(map[string]*Extension)
		loaded[name] = versions
	}
	if ext, ok := versions[version.String()]; ok {
		return ext, nil
	}

	ext, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading extension %q: %w", name, err)
	}
	if ext.metadata.Name != name {
		return nil, fmt.Errorf("file %s should provide %q but provides %q",
			path, name, ext.metadata.Name)
	}
	if ext.version == nil || !ext.version.Equal(version) {
		return nil, fmt.Errorf("file %s should provide version %s but provides %s",
			path, version, ext.metadata.Version)
	}

	versions[version.String()] = ext
	return ext, nil
}

// Get returns a previously loaded extension of any version, if one exists.
func Get(name string) (*Extension, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	versions := loaded[name]
	var best *Extension
	for _, ext := range versions {
		if best == nil || ext.version.GreaterThan(best.version) {
			best = ext
		}
	}
	return best, best != nil
}
