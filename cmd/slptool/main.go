// slptool is a command-line client for Service Location Protocol v2
// discovery and registration.
package main

import "github.com/urbasus/goslp/cmd/slptool/commands"

func main() {
	commands.Execute()
}
