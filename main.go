package main

import (
	"github.com/UnAfraid/wgtunnel/cmd"
)

func main() {
	cmd.Execute()
}
