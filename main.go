// SPDX-License-Identifier: MPL-2.0

package main

import cmd "gangway-cli/cmd/gangway"

func main() {
	cmd.Execute()
}
