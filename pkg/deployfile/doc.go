// SPDX-License-Identifier: MPL-2.0

// Package deployfile provides types and parsing for gangway.toml deployment
// definitions.
//
// A deployfile declares the application entry target (a "module.path:attribute"
// reference to the WSGI/ASGI callable), server tuning for the pre-fork app
// server, and optional overrides for the image build. This package handles
// TOML decoding, default application, and struct validation. External
// consumers should use the exported Parse() and Load() functions.
package deployfile
