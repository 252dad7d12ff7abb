package main

import "pdftranslate/cmd"

func main() {
	cmd.Execute()
}
