/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package connection

import (
	"fmt"
	"strings"
)

// Scope is the lifetime policy of native connections.
type Scope int

const (
	// PerOperation opens a connection for each command and closes it after.
	PerOperation Scope = iota
	// PerRequest shares one connection across a logical unit of work opened
	// with Manager.Begin.
	PerRequest
	// Singleton shares one connection for the lifetime of the Manager.
	Singleton
)

var scopeNames = map[Scope]string{
	PerOperation: "per-operation",
	PerRequest:   "per-request",
	Singleton:    "singleton",
}

func (s Scope) String() string {
	if n, ok := scopeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// ParseScope parses the text form of a scope. Case, underscores and dashes
// are ignored, so "PerRequest" and "per_request" are accepted too.
func ParseScope(s string) (Scope, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(s))
	for scope, name := range scopeNames {
		if strings.ReplaceAll(name, "-", "") == norm {
			return scope, nil
		}
	}
	return 0, fmt.Errorf("connection: unknown scope %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) {
	if _, ok := scopeNames[s]; !ok {
		return nil, fmt.Errorf("connection: invalid scope %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(text []byte) error {
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
