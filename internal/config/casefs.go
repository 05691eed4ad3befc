package config

import (
	"os"
	"path/filepath"
	"strings"
)

// CaseInsensitive reports whether path keys under the workspace must ignore
// case. An explicit workspace.case_insensitive setting wins; otherwise the
// file system holding dir is probed.
func (c *Config) CaseInsensitive(dir string) bool {
	if c.Workspace.CaseInsensitive != nil {
		return *c.Workspace.CaseInsensitive
	}
	return DetectCaseInsensitive(dir)
}

// DetectCaseInsensitive creates a temporary file in dir and checks whether it
// can be found under an upper-cased name. Errors report false.
func DetectCaseInsensitive(dir string) bool {
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "tsbridge-case-")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)

	base := filepath.Base(name)
	upper := filepath.Join(filepath.Dir(name), strings.ToUpper(base))
	if upper == name {
		return false
	}
	_, err = os.Stat(upper)
	return err == nil
}
