/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize returns the lookup form of a user, email or role name.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return cases.Upper(language.Und).String(name)
}
