package main

import "github.com/yieldledger/yieldledger/cmd"

func main() {
	cmd.Execute()
}
