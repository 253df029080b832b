package pathutil

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// DataDirEnv overrides the default ~/.ivrbridge data directory.
const DataDirEnv = "IVRBRIDGE_HOME"

const dataDirName = ".ivrbridge"

// Expand resolves environment variables and a leading "~" in path.
// Blank input stays blank.
func Expand(path string) (string, error) {
	p := os.ExpandEnv(strings.TrimSpace(path))
	if p == "" {
		return "", nil
	}
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return filepath.Clean(p), nil
	}

	home, err := HomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/")), nil
}

// HomeDir returns the first fully resolved home directory from the OS,
// the user database, then $HOME.
func HomeDir() (string, error) {
	candidates := make([]string, 0, 3)
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, home)
	}
	if current, err := user.Current(); err == nil {
		candidates = append(candidates, current.HomeDir)
	}
	candidates = append(candidates, os.Getenv("HOME"))

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" && c != "~" && !strings.HasPrefix(c, "~/") {
			return c, nil
		}
	}
	return "", errors.New("home directory is not set or not resolved")
}

// DataDir is where ivrbridge keeps its config, archive and webhook keys.
func DataDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(DataDirEnv)); dir != "" {
		return Expand(dir)
	}
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dataDirName), nil
}

// DataPath joins elem under DataDir, falling back to an unexpanded
// "~/.ivrbridge" prefix when no home directory can be found.
func DataPath(elem ...string) string {
	dir, err := DataDir()
	if err != nil {
		dir = filepath.Join("~", dataDirName)
	}
	return filepath.Join(append([]string{dir}, elem...)...)
}

// EnsureWritable creates dir if needed and proves a file can be written in it.
func EnsureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
