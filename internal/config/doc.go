// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with TOML as the file format.
//
// Configuration is loaded from ~/.config/gangway/config.toml (or XDG equivalent on Linux,
// ~/Library/Application Support/gangway/config.toml on macOS, %APPDATA%\gangway\config.toml
// on Windows). The package provides type-safe configuration access and supports container
// engine selection, default image build settings, and UI options. Per-project deployment
// settings live in gangway.toml and are handled by pkg/deployfile, not here.
package config
