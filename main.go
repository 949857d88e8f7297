package main

import (
	"github.com/luma/eventmsg/cmd"
)

func main() {
	cmd.Execute()
}
