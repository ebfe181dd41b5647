package main

import "github.com/LENAX/dagflow/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
