package main

import "github.com/kozaktomas/facesearch/cmd"

func main() {
	cmd.Execute()
}
