// Public domain.

package main

import "github.com/soniakeys/magcompare/internal/mcprog"

func main() {
	mcprog.Main()
}
