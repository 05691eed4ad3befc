package tsserver

import (
	"fmt"
	"strconv"
	"strings"
)

// API is a tsserver version used to gate protocol features.
type API struct {
	major, minor, patch int
	display             string
}

// NewAPI creates an API version.
func NewAPI(major, minor, patch int) API {
	return API{
		major:   major,
		minor:   minor,
		patch:   patch,
		display: fmt.Sprintf("%d.%d.%d", major, minor, patch),
	}
}

// Known API versions.
var (
	DefaultAPI = NewAPI(1, 0, 0)
	V400       = NewAPI(4, 0, 0)
	V440       = NewAPI(4, 4, 0)
	V500       = NewAPI(5, 0, 0)
)

// ParseAPI parses a server version string such as "5.4.2" or
// "4.4.0-dev.20210614". Pre-release and build suffixes are kept for display
// but ignored for comparisons.
func ParseAPI(version string) (API, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return API{}, fmt.Errorf("empty version")
	}

	core := version
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}

	parts := strings.Split(core, ".")
	if len(parts) > 3 {
		return API{}, fmt.Errorf("invalid version %q", version)
	}

	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return API{}, fmt.Errorf("invalid version %q", version)
		}
		nums[i] = n
	}

	api := NewAPI(nums[0], nums[1], nums[2])
	api.display = version
	return api, nil
}

// String returns the version as reported by the server.
func (a API) String() string {
	if a.display == "" {
		return "0.0.0"
	}
	return a.display
}

// Compare returns -1, 0, or 1.
func (a API) Compare(other API) int {
	switch {
	case a.major != other.major:
		return cmp(a.major, other.major)
	case a.minor != other.minor:
		return cmp(a.minor, other.minor)
	default:
		return cmp(a.patch, other.patch)
	}
}

// GTE reports whether a is at least other.
func (a API) GTE(other API) bool {
	return a.Compare(other) >= 0
}

// LT reports whether a is older than other.
func (a API) LT(other API) bool {
	return a.Compare(other) < 0
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
