package main

import "livewatcher.com/cmd"

func main() {
	cmd.Execute()
}
