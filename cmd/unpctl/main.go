// Command unpctl is the operator-facing CLI for the UNP protocol: send,
// listen, discover, and version.
package main

import "github.com/strand-protocol/unp/internal/cli/cmd"

func main() {
	cmd.Execute()
}
