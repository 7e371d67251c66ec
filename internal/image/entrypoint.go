// SPDX-License-Identifier: MPL-2.0

package image

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"gangway-cli/pkg/deployfile"
)

// generateEntrypoint creates the POSIX shell entrypoint baked into the image.
//
// The script is the in-image counterpart of the host-side supervisor: it
// verifies the in-project virtual environment, applies its activation to the
// process environment, and replaces itself with the pre-fork app server via
// exec, so the server becomes PID 1 and receives signals directly. Nothing
// runs after the exec line.
//
// Arguments given to the container replace the server command entirely and
// are exec'd verbatim, as an escape hatch for alternative entrypoints
// (running tests, a shell, a migration).
func generateEntrypoint(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("#!/bin/sh\n")
	sb.WriteString("set -eu\n\n")

	fmt.Fprintf(&sb, "VENV=\"%s\"\n\n", cfg.VenvDir())

	sb.WriteString("if [ ! -x \"$VENV/bin/python\" ]; then\n")
	sb.WriteString("    echo \"error: virtual environment missing at $VENV; rebuild the image\" >&2\n")
	sb.WriteString("    exit 1\n")
	sb.WriteString("fi\n\n")

	sb.WriteString("export VIRTUAL_ENV=\"$VENV\"\n")
	sb.WriteString("export PATH=\"$VENV/bin:$PATH\"\n")
	sb.WriteString("unset PYTHONHOME\n\n")

	sb.WriteString("if [ \"$#\" -gt 0 ]; then\n")
	sb.WriteString("    exec \"$@\"\n")
	sb.WriteString("fi\n\n")

	fmt.Fprintf(&sb, "exec \"$VENV/bin/gunicorn\" \\\n")
	fmt.Fprintf(&sb, "    -c \"%s/%s\" \\\n", cfg.AppDir, ServerConfName)
	fmt.Fprintf(&sb, "    --timeout %d \\\n", int(cfg.Server.Timeout.Seconds()))
	if cfg.Server.Preload {
		sb.WriteString("    --preload \\\n")
	}
	fmt.Fprintf(&sb, "    %q\n", cfg.Target.String())

	return sb.String()
}

// RenderServerConf creates the app server configuration file referenced by
// the server command's -c flag; the in-image entrypoint and the host-side
// supervisor both use it. Tuning that is not overridable per invocation
// lives here; timeout and preload stay on the command line where an operator
// can see them in the process list.
//
// gunicorn has no setting for the async event loop implementation, so the
// loop selection rides on the worker class: a subclass pins it through the
// uvicorn worker's CONFIG_KWARGS and is assigned as a class object, which
// keeps the file independent of its own import path.
func RenderServerConf(settings deployfile.ServerSettings) string {
	var sb strings.Builder

	sb.WriteString("# Server configuration. Regenerated on every image build.\n")

	shim := settings.Loop != "" && strings.Contains(settings.WorkerClass, ".")
	if shim {
		mod, cls := splitClassPath(settings.WorkerClass)
		fmt.Fprintf(&sb, "from %s import %s\n\n", mod, cls)
	}

	fmt.Fprintf(&sb, "bind = \"0.0.0.0:%d\"\n", settings.Port)
	fmt.Fprintf(&sb, "workers = %d\n", settings.Workers)
	fmt.Fprintf(&sb, "graceful_timeout = %d\n", int(settings.GracefulTimeout.Seconds()))

	if shim {
		_, cls := splitClassPath(settings.WorkerClass)
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "class GangwayWorker(%s):\n", cls)
		fmt.Fprintf(&sb, "    CONFIG_KWARGS = {**%s.CONFIG_KWARGS, \"loop\": %q}\n", cls, settings.Loop)
		sb.WriteString("\n\n")
		sb.WriteString("worker_class = GangwayWorker\n")
	} else {
		fmt.Fprintf(&sb, "worker_class = %q\n", settings.WorkerClass)
	}

	return sb.String()
}

// splitClassPath splits a dotted class path into module and class name.
func splitClassPath(classPath string) (module, class string) {
	i := strings.LastIndex(classPath, ".")
	return classPath[:i], classPath[i+1:]
}

// validateShellScript parses src as POSIX shell and returns a syntax error
// if the generated script is malformed. Run on every generated entrypoint
// before it enters a build context.
func validateShellScript(name, src string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(src), name); err != nil {
		return fmt.Errorf("generated script %s is not valid POSIX shell: %w", name, err)
	}
	return nil
}
