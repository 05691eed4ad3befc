package tsserver

import (
	"strings"

	"github.com/dshills/tsbridge/internal/editor"
)

// InMemoryResourcePrefix starts every tsserver path that has no backing file.
const InMemoryResourcePrefix = "^"

const emptyAuthority = "ts-nul-authority"

// Schemes with special handling.
const (
	SchemeWalkThroughSnippet   = "walkThroughSnippet"
	SchemeNotebookCell         = "vscode-notebook-cell"
	SchemeOfficeScript         = "office-script"
	SchemeChatCodeBlock        = "vscode-chat-code-block"
	SchemeChatBackingCodeBlock = "vscode-copilot-chat-code-block"
	SchemeGit                  = "git"
	SchemeLiveShare            = "vsls"
	SchemeGitHub               = "github"
	SchemeAzureRepos           = "azurerepos"
)

// disabledSchemes hold content the server must never see, such as historic
// git revisions.
var disabledSchemes = map[string]bool{
	SchemeGit:        true,
	SchemeLiveShare:  true,
	SchemeGitHub:     true,
	SchemeAzureRepos: true,
}

// semanticSupportedSchemes are keyed by lower-cased scheme.
var semanticSupportedSchemes = map[string]bool{
	editor.SchemeFile:     true,
	editor.SchemeUntitled: true,
	"walkthroughsnippet":  true,
	SchemeNotebookCell:    true,
	SchemeChatCodeBlock:   true,
}

// IsSemanticSupported reports whether project-wide features are available
// for resources with uri's scheme.
func IsSemanticSupported(uri editor.URI) bool {
	return semanticSupportedSchemes[uri.Scheme()]
}

// IsOfScheme reports whether uri uses one of schemes.
func IsOfScheme(uri editor.URI, schemes ...string) bool {
	s := uri.Scheme()
	for _, scheme := range schemes {
		if strings.EqualFold(s, scheme) {
			return true
		}
	}
	return false
}

// ToTSFilePath maps a resource to the path the server knows it by. File
// resources map to their file-system path; other resources map to an
// in-memory path of the form ^/<scheme>/<authority>/<path>.
func ToTSFilePath(uri editor.URI) (string, bool) {
	scheme := uri.Scheme()
	if scheme == "" || disabledSchemes[scheme] {
		return "", false
	}

	if scheme == editor.SchemeFile {
		return uri.FSPath(), true
	}

	authority := uri.Authority()
	if authority == "" {
		authority = emptyAuthority
	}

	path := uri.Path()
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	tsPath := InMemoryResourcePrefix + "/" + scheme + "/" + authority + path
	if f := uri.Fragment(); f != "" {
		tsPath += "#" + f
	}
	return tsPath, true
}

// workspaceRootFor returns the shortest root containing uri. Roots must share
// the resource's scheme and authority.
func workspaceRootFor(roots []editor.URI, uri editor.URI) (editor.URI, bool) {
	var best editor.URI
	bestLen := -1

	for _, root := range roots {
		if root.Scheme() != uri.Scheme() || root.Authority() != uri.Authority() {
			continue
		}

		rootPath := strings.TrimSuffix(root.Path(), "/")
		if !strings.HasPrefix(uri.Path(), rootPath+"/") {
			continue
		}
		if bestLen < 0 || len(rootPath) < bestLen {
			best, bestLen = root, len(rootPath)
		}
	}
	return best, bestLen >= 0
}

// isWindowsPath reports whether p starts with a drive letter.
func isWindowsPath(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// IsCaseInsensitivePath reports whether path keys must be compared without
// regard to case: Windows paths always, absolute POSIX paths when the backing
// file system is case-insensitive.
func IsCaseInsensitivePath(path string, onCaseInsensitiveFileSystem bool) bool {
	if isWindowsPath(path) {
		return true
	}
	return strings.HasPrefix(path, "/") && onCaseInsensitiveFileSystem
}
