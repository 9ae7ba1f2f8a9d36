package main

import "github.com/KaramelBytes/docqa-cli/cmd"

func main() {
	cmd.Execute()
}
