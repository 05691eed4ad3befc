// Package editor is a headless document model: the editor-side collaborator
// that supplies text snapshots, change events, language modes, and
// open/close/visibility notifications to the synchronization core.
package editor

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// Well-known URI schemes.
const (
	SchemeFile     = "file"
	SchemeUntitled = "untitled"
)

// URI identifies a document, for example file:///src/a.ts or untitled:Untitled-1.
type URI string

// FileURI converts a file-system path to a file URI.
func FileURI(path string) URI {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	path = filepath.ToSlash(path)
	if runtime.GOOS == "windows" && len(path) >= 2 && path[1] == ':' {
		path = "/" + path
	}

	u := &url.URL{Scheme: SchemeFile, Path: path}
	return URI(u.String())
}

// String returns the URI text.
func (u URI) String() string {
	return string(u)
}

func (u URI) parse() *url.URL {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return &url.URL{Path: string(u)}
	}
	return parsed
}

// Scheme returns the lower-cased scheme, or "" when there is none.
func (u URI) Scheme() string {
	return strings.ToLower(u.parse().Scheme)
}

// Authority returns the host part of the URI.
func (u URI) Authority() string {
	return u.parse().Host
}

// Path returns the URI path. Opaque URIs such as untitled:Untitled-1 return
// their opaque part.
func (u URI) Path() string {
	parsed := u.parse()
	if parsed.Path == "" && parsed.Opaque != "" {
		if unescaped, err := url.PathUnescape(parsed.Opaque); err == nil {
			return unescaped
		}
		return parsed.Opaque
	}
	return parsed.Path
}

// Fragment returns the fragment without the leading '#'.
func (u URI) Fragment() string {
	return u.parse().Fragment
}

// FSPath returns the file-system path of a file URI, or "" for other schemes.
func (u URI) FSPath() string {
	if u.Scheme() != SchemeFile {
		return ""
	}
	path := u.parse().Path
	if runtime.GOOS == "windows" && len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}

// IsFile reports whether u uses the file scheme.
func (u URI) IsFile() bool {
	return u.Scheme() == SchemeFile
}
