package main

import "github.com/iverona/face-detect/cmd"

func main() {
	cmd.Execute()
}
