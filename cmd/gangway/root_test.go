// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"strings"
	"testing"

	"gangway-cli/internal/issue"
)

func TestGetVersionString(t *testing.T) {
	// Not parallel: subtests mutate package-level Version/Commit/BuildDate vars.

	t.Run("ldflags version takes priority", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "v1.2.3"
		Commit = "abc1234"
		BuildDate = "2025-06-15T10:00:00Z"

		got := getVersionString()
		want := "v1.2.3 (commit: abc1234, built: 2025-06-15T10:00:00Z)"
		if got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})

	t.Run("dev build fallback", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "dev"

		got := getVersionString()
		want := "dev (built from source)"
		if got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})
}

func TestFormatErrorForDisplay(t *testing.T) {
	t.Parallel()

	t.Run("plain error", func(t *testing.T) {
		t.Parallel()
		got := formatErrorForDisplay(errors.New("plain failure"), false)
		if got != "plain failure" {
			t.Errorf("formatErrorForDisplay() = %q, want %q", got, "plain failure")
		}
	})

	t.Run("actionable error uses Format", func(t *testing.T) {
		t.Parallel()
		ae := issue.NewErrorContext().
			WithOperation("load configuration").
			WithSuggestion("Run gangway config init").
			Wrap(errors.New("no such file")).
			BuildError()

		got := formatErrorForDisplay(ae, false)
		if !strings.Contains(got, "load configuration") {
			t.Errorf("formatted error %q missing operation", got)
		}
		if !strings.Contains(got, "Run gangway config init") {
			t.Errorf("formatted error %q missing suggestion", got)
		}
	})
}
