// SPDX-License-Identifier: MPL-2.0

// Package venv locates and activates Python virtual environments.
//
// A virtual environment is considered usable when its root directory
// contains a pyvenv.cfg marker and an executable interpreter under bin/.
// Activation is expressed as a pure transformation over an environment
// variable list, mirroring what "source bin/activate" does in a shell:
// the environment's bin directory is prepended to PATH, VIRTUAL_ENV is
// set to the environment root, and PYTHONHOME is removed. The transform
// is idempotent so callers can apply it without checking prior state.
package venv
