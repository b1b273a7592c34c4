package main

import "github.com/ridoystarlord/sheetmatch/cmd"

func main() {
	cmd.Execute()
}
