package tsserver

import (
	"strings"
)

// Capability is a class of language features a server can provide.
type Capability uint8

// Capabilities a server may have.
const (
	// CapabilitySyntax covers single-file syntactic features.
	CapabilitySyntax Capability = 1 << iota
	// CapabilityEnhancedSyntax covers syntactic features that can look at
	// other open files.
	CapabilityEnhancedSyntax
	// CapabilitySemantic covers project-wide type checking.
	CapabilitySemantic
)

// String returns the capability name.
func (c Capability) String() string {
	switch c {
	case CapabilitySyntax:
		return "syntax"
	case CapabilityEnhancedSyntax:
		return "enhancedSyntax"
	case CapabilitySemantic:
		return "semantic"
	default:
		return "unknown"
	}
}

// Capabilities is a set of Capability values.
type Capabilities uint8

// NewCapabilities creates a set from caps.
func NewCapabilities(caps ...Capability) Capabilities {
	var set Capabilities
	for _, c := range caps {
		set |= Capabilities(c)
	}
	return set
}

// Has reports whether c is in the set.
func (s Capabilities) Has(c Capability) bool {
	return s&Capabilities(c) != 0
}

// String lists the capabilities in the set.
func (s Capabilities) String() string {
	var names []string
	for _, c := range []Capability{CapabilitySyntax, CapabilityEnhancedSyntax, CapabilitySemantic} {
		if s.Has(c) {
			names = append(names, c.String())
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}

// ServerMode selects which features a server process provides.
type ServerMode string

// Server modes understood by tsserver's --serverMode flag.
const (
	ServerModeSemantic        ServerMode = "semantic"
	ServerModePartialSemantic ServerMode = "partialSemantic"
	ServerModeSyntactic       ServerMode = "syntactic"
)

// CapabilitiesFor returns the capabilities of a server started in mode.
func CapabilitiesFor(mode ServerMode) Capabilities {
	switch mode {
	case ServerModeSyntactic:
		return NewCapabilities(CapabilitySyntax)
	case ServerModePartialSemantic:
		return NewCapabilities(CapabilitySyntax, CapabilityEnhancedSyntax)
	default:
		return NewCapabilities(CapabilitySyntax, CapabilityEnhancedSyntax, CapabilitySemantic)
	}
}
