package main

import "github.com/oshokin/crx-release/cmd/crx-release/cmd"

func main() {
	cmd.Execute()
}
