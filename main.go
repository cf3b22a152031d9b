package main

import "github.com/KaramelBytes/clusterlens/cmd"

func main() {
	cmd.Execute()
}
