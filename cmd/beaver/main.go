package main

import "github.com/illmade-knight/beaver/cmd/beaver/cmd"

func main() {
	cmd.Execute()
}
