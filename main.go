// main.go
// Application entry point for the V2V relay.
package main

import "github.com/erilali/v2vrelay/internal/cli"

func main() {
	cli.Execute()
}
