package main

import "github.com/LENAX/content-pipeline/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
