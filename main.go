package main

import "github.com/andrejsstepanovs/supadiag/cmd"

func main() {
	cmd.Execute()
}
