package main

import "github.com/zynaudio/engine/cmd"

func main() {
	cmd.Execute()
}
