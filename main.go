package main

import "github.com/prodfinder/imagepick/cmd"

func main() {
	cmd.Execute()
}
