package buffersync

import (
	"github.com/dshills/tsbridge/internal/tsserver"
)

// Language mode ids managed by default.
const (
	LanguageTypeScript      = "typescript"
	LanguageTypeScriptReact = "typescriptreact"
	LanguageJavaScript      = "javascript"
	LanguageJavaScriptReact = "javascriptreact"
)

// DefaultModeIDs are the language modes synchronized with tsserver.
var DefaultModeIDs = []string{
	LanguageTypeScript,
	LanguageTypeScriptReact,
	LanguageJavaScript,
	LanguageJavaScriptReact,
}

type bufferKind int

const (
	bufferKindTypeScript bufferKind = iota + 1
	bufferKindJavaScript
)

func kindOf(languageID string) bufferKind {
	switch languageID {
	case LanguageJavaScript, LanguageJavaScriptReact:
		return bufferKindJavaScript
	default:
		return bufferKindTypeScript
	}
}

func scriptKindOf(languageID string) tsserver.ScriptKindName {
	switch languageID {
	case LanguageTypeScript:
		return tsserver.ScriptKindTS
	case LanguageTypeScriptReact:
		return tsserver.ScriptKindTSX
	case LanguageJavaScript:
		return tsserver.ScriptKindJS
	case LanguageJavaScriptReact:
		return tsserver.ScriptKindJSX
	default:
		return ""
	}
}
