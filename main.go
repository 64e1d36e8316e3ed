package main

import "github.com/tonimelisma/pbi-refresh-monitor/cmd"

func main() {
	cmd.Execute()
}
