package buffersync

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dshills/tsbridge/internal/editor"
	"github.com/dshills/tsbridge/internal/tsserver"
)

// PathNormalizer maps a resource to its canonical path. It reports false for
// resources that have no path; such resources are never stored.
type PathNormalizer func(editor.URI) (string, bool)

// ResourceMapConfig controls key comparison.
type ResourceMapConfig struct {
	// OnCaseInsensitiveFileSystem makes absolute POSIX paths compare without
	// regard to case. Windows paths always do.
	OnCaseInsensitiveFileSystem bool
}

// ResourceEntry is a resource and its value.
type ResourceEntry[T any] struct {
	Resource editor.URI
	Value    T
}

// ResourceMap is keyed by normalized resource path and iterates in insertion
// order. Replacing the value of an existing key keeps its position.
type ResourceMap[T any] struct {
	normalize PathNormalizer
	config    ResourceMapConfig
	entries   *orderedmap.OrderedMap[string, ResourceEntry[T]]
}

// NewResourceMap creates an empty map.
func NewResourceMap[T any](normalize PathNormalizer, config ResourceMapConfig) *ResourceMap[T] {
	return &ResourceMap[T]{
		normalize: normalize,
		config:    config,
		entries:   orderedmap.New[string, ResourceEntry[T]](),
	}
}

// newSibling creates an empty map with the same key policy.
func newSibling[T, U any](m *ResourceMap[U]) *ResourceMap[T] {
	return NewResourceMap[T](m.normalize, m.config)
}

func (m *ResourceMap[T]) toKey(uri editor.URI) (string, bool) {
	path, ok := m.normalize(uri)
	if !ok || path == "" {
		return "", false
	}
	return m.pathKey(path), true
}

func (m *ResourceMap[T]) pathKey(path string) string {
	if tsserver.IsCaseInsensitivePath(path, m.config.OnCaseInsensitiveFileSystem) {
		return strings.ToLower(path)
	}
	return path
}

// Len returns the number of entries.
func (m *ResourceMap[T]) Len() int {
	return m.entries.Len()
}

// Has reports whether uri has an entry.
func (m *ResourceMap[T]) Has(uri editor.URI) bool {
	key, ok := m.toKey(uri)
	if !ok {
		return false
	}
	_, present := m.entries.Get(key)
	return present
}

// Get returns the value stored for uri.
func (m *ResourceMap[T]) Get(uri editor.URI) (T, bool) {
	key, ok := m.toKey(uri)
	if !ok {
		var zero T
		return zero, false
	}
	entry, present := m.entries.Get(key)
	return entry.Value, present
}

// getByPath returns the value whose normalized path is path.
func (m *ResourceMap[T]) getByPath(path string) (ResourceEntry[T], bool) {
	return m.entries.Get(m.pathKey(path))
}

// Set stores value for uri. Resources without a path are ignored.
func (m *ResourceMap[T]) Set(uri editor.URI, value T) {
	key, ok := m.toKey(uri)
	if !ok {
		return
	}
	m.entries.Set(key, ResourceEntry[T]{Resource: uri, Value: value})
}

// Delete removes uri and reports whether it was present.
func (m *ResourceMap[T]) Delete(uri editor.URI) bool {
	key, ok := m.toKey(uri)
	if !ok {
		return false
	}
	_, present := m.entries.Delete(key)
	return present
}

// Clear removes every entry.
func (m *ResourceMap[T]) Clear() {
	m.entries = orderedmap.New[string, ResourceEntry[T]]()
}

// Entries returns a snapshot of the entries in insertion order.
func (m *ResourceMap[T]) Entries() []ResourceEntry[T] {
	out := make([]ResourceEntry[T], 0, m.entries.Len())
	for pair := m.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Values returns a snapshot of the values in insertion order.
func (m *ResourceMap[T]) Values() []T {
	out := make([]T, 0, m.entries.Len())
	for pair := m.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.Value)
	}
	return out
}

// Resources returns a snapshot of the keys' resources in insertion order.
func (m *ResourceMap[T]) Resources() []editor.URI {
	out := make([]editor.URI, 0, m.entries.Len())
	for pair := m.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.Resource)
	}
	return out
}
