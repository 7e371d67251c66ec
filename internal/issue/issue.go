// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	EngineNotFoundId Id = iota + 1
	ManifestNotFoundId
	LockfileNotFoundId
	LockfileInconsistentId
	DeployfileNotFoundId
	DeployfileParseErrorId
	ImageBuildFailedId
	EnvMissingId
	PreloadFailedId
	RespawnBudgetExhaustedId
	ConfigLoadFailedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // documentation links shown in the rendered output
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also: "
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "]"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	engineNotFoundIssue = &Issue{
		id: EngineNotFoundId,
		mdMsg: `
# Container engine not found!

Building and inspecting images requires a container engine, but none is available.

## Supported container engines:
- **Podman** (recommended for rootless builds)
- **Docker**

## Things you can try:
- Install Podman:
  - Linux: ` + "`sudo apt install podman`" + ` or ` + "`sudo dnf install podman`" + `
  - macOS: ` + "`brew install podman`" + `
- Install Docker:
  - https://docs.docker.com/get-docker/

- Configure your preferred engine in ~/.config/gangway/config.toml:
~~~toml
container_engine = "podman"  # or "docker"
~~~`,
	}

	manifestNotFoundIssue = &Issue{
		id: ManifestNotFoundId,
		mdMsg: `
# No pyproject.toml found!

The image builder needs the project's dependency manifest, but none was found
in the project directory.

## Things you can try:
- Run the build from the directory containing ` + "`pyproject.toml`" + `:
~~~
$ cd /path/to/your/service
$ gangway build
~~~

- Or point the builder at the project explicitly:
~~~
$ gangway build --project /path/to/your/service
~~~`,
	}

	lockfileNotFoundIssue = &Issue{
		id: LockfileNotFoundId,
		mdMsg: `
# No poetry.lock found!

Reproducible builds install from the fully resolved lock file, never from the
loose manifest constraints. Without a lock file there is nothing to build from.

## Things you can try:
- Generate the lock file and commit it:
~~~
$ poetry lock
$ git add poetry.lock
~~~`,
	}

	lockfileInconsistentIssue = &Issue{
		id: LockfileInconsistentId,
		mdMsg: `
# Lock file is out of date!

The lock file does not match the manifest. Building from a stale lock file
would silently pin versions that no longer satisfy your declared constraints,
so the build is aborted.

## Things you can try:
- Re-resolve the lock file from the manifest:
~~~
$ poetry lock
~~~

- If you edited pyproject.toml by hand, verify the dependency tables:
~~~
$ poetry check
~~~`,
	}

	deployfileNotFoundIssue = &Issue{
		id: DeployfileNotFoundId,
		mdMsg: `
# No gangway.toml found!

The deploy manifest declares the application import target and the worker pool
tuning baked into the image.

## Things you can try:
- Create a minimal gangway.toml next to pyproject.toml:
~~~toml
app = "app.main:app"

[server]
port = 8632
workers = 4
~~~`,
	}

	deployfileParseErrorIssue = &Issue{
		id: DeployfileParseErrorId,
		mdMsg: `
# Failed to parse gangway.toml!

Your deploy manifest contains syntax errors or invalid values.

## Common issues:
- Invalid TOML syntax (missing quotes, mismatched brackets)
- An app target that is not of the form ` + "`module.path:attribute`" + `
- A worker count, port, or timeout outside its valid range

## Things you can try:
- Check the error message above for the offending field
- Validate the manifest without building:
~~~
$ gangway check
~~~`,
	}

	imageBuildFailedIssue = &Issue{
		id: ImageBuildFailedId,
		mdMsg: `
# Image build failed!

The container engine reported an error while building the image. Nothing was
tagged: a failed build never leaves a partial image behind.

## Common causes:
- A locked package could not be fetched (network failure, yanked release)
- The lock file does not satisfy the Python version constraint
- The base image could not be pulled

## Things you can try:
- Re-run with verbose mode to see the full engine output:
~~~
$ gangway --verbose build
~~~

- Verify the lock file resolves locally:
~~~
$ poetry install --dry-run
~~~`,
	}

	envMissingIssue = &Issue{
		id: EnvMissingId,
		mdMsg: `
# Dependency environment missing!

The supervisor could not activate the prebuilt virtual environment. Starting
anyway would silently fall back to system-wide packages, so startup is aborted.

## Common causes:
- The image was built without the install stage completing
- The container was started with a volume mounted over the environment path
- The environment directory is corrupt (no interpreter or pyvenv.cfg)

## Things you can try:
- Rebuild the image:
~~~
$ gangway build --rebuild
~~~

- Inspect the environment path inside the container:
~~~
$ gangway up -- ls -la /srv/app/.venv/bin
~~~`,
	}

	preloadFailedIssue = &Issue{
		id: PreloadFailedId,
		mdMsg: `
# Application preload failed!

The application module failed to import in the master process, so no workers
were started. Failing the whole container here is deliberate: it surfaces
import-time errors immediately instead of hiding them behind a master that
serves no traffic.

## Things you can try:
- Run the import by hand inside the environment:
~~~
$ gangway up -- python -c "import app.main"
~~~

- Check for missing environment variables the application reads at import time`,
	}

	respawnBudgetExhaustedIssue = &Issue{
		id: RespawnBudgetExhaustedId,
		mdMsg: `
# Worker respawn budget exhausted!

Workers kept dying or missing their heartbeat deadline, and the master gave up
replacing them. This usually means every worker hits the same fatal condition.

## Things you can try:
- Check the worker logs above for the recurring failure
- Raise the liveness timeout if workers do legitimate long blocking work:
~~~toml
[server]
timeout = 300
~~~

- Raise the budget if the workload is genuinely flaky:
~~~toml
[server]
respawn_budget = 16
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Your gangway config file could not be loaded.

## Things you can try:
- Check the TOML syntax of ~/.config/gangway/config.toml
- Show the effective configuration:
~~~
$ gangway config show
~~~

- Show which file is being read:
~~~
$ gangway config path
~~~`,
	}

	issues = map[Id]*Issue{
		engineNotFoundIssue.Id():         engineNotFoundIssue,
		manifestNotFoundIssue.Id():       manifestNotFoundIssue,
		lockfileNotFoundIssue.Id():       lockfileNotFoundIssue,
		lockfileInconsistentIssue.Id():   lockfileInconsistentIssue,
		deployfileNotFoundIssue.Id():     deployfileNotFoundIssue,
		deployfileParseErrorIssue.Id():   deployfileParseErrorIssue,
		imageBuildFailedIssue.Id():       imageBuildFailedIssue,
		envMissingIssue.Id():             envMissingIssue,
		preloadFailedIssue.Id():          preloadFailedIssue,
		respawnBudgetExhaustedIssue.Id(): respawnBudgetExhaustedIssue,
		configLoadFailedIssue.Id():       configLoadFailedIssue,
	}
)

func Values() []*Issue {
	return slices.Collect(maps.Values(issues))
}

func Get(id Id) *Issue {
	return issues[id]
}
