package main

import "github.com/maxpark/access-controller/cmd"

func main() {
	cmd.Execute()
}
