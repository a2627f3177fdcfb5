package main

import "homenotes/cmd"

func main() {
	cmd.Execute()
}
