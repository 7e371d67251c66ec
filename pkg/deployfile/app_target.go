// SPDX-License-Identifier: MPL-2.0

package deployfile

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidAppTarget is the sentinel error wrapped by InvalidAppTargetError.
var ErrInvalidAppTarget = errors.New("invalid app target")

// AppTarget references the application callable as "module.path:attribute",
// e.g. "app.main:app". The module path is one or more dot-separated Python
// identifiers; the attribute is a single identifier.
type AppTarget string

// InvalidAppTargetError is returned when an AppTarget is malformed.
type InvalidAppTargetError struct {
	Value  AppTarget
	Reason string
}

var pyIdentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Error implements the error interface.
func (e *InvalidAppTargetError) Error() string {
	return fmt.Sprintf("invalid app target %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidAppTarget so callers can use errors.Is for programmatic detection.
func (e *InvalidAppTargetError) Unwrap() error { return ErrInvalidAppTarget }

// String returns the string representation of the AppTarget.
func (t AppTarget) String() string { return string(t) }

// Module returns the module path part of the target ("app.main" in "app.main:app").
// Returns "" when the target is malformed.
func (t AppTarget) Module() string {
	mod, _, found := strings.Cut(string(t), ":")
	if !found {
		return ""
	}
	return mod
}

// Attribute returns the attribute part of the target ("app" in "app.main:app").
// Returns "" when the target is malformed.
func (t AppTarget) Attribute() string {
	_, attr, found := strings.Cut(string(t), ":")
	if !found {
		return ""
	}
	return attr
}

// Validate returns an error unless the target is a well-formed
// "module.path:attribute" reference.
func (t AppTarget) Validate() error {
	if t == "" {
		return &InvalidAppTargetError{Value: t, Reason: "must not be empty"}
	}

	mod, attr, found := strings.Cut(string(t), ":")
	if !found {
		return &InvalidAppTargetError{Value: t, Reason: "must contain ':' separating module and attribute"}
	}
	if strings.Contains(attr, ":") {
		return &InvalidAppTargetError{Value: t, Reason: "must contain exactly one ':'"}
	}

	if mod == "" {
		return &InvalidAppTargetError{Value: t, Reason: "module path must not be empty"}
	}
	for _, part := range strings.Split(mod, ".") {
		if !pyIdentRe.MatchString(part) {
			return &InvalidAppTargetError{Value: t, Reason: fmt.Sprintf("module path segment %q is not a valid identifier", part)}
		}
	}

	if !pyIdentRe.MatchString(attr) {
		return &InvalidAppTargetError{Value: t, Reason: fmt.Sprintf("attribute %q is not a valid identifier", attr)}
	}

	return nil
}
