// Package main provides a short usage banner for the repository.
//
// For the full CLI, use: go run ./cmd/oocsim
package main

import "fmt"

func main() {
	fmt.Println("oocsim - out-of-order, trace-driven cache hierarchy simulator")
	fmt.Println("")
	fmt.Println("Usage: oocsim [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config  Path to simulator configuration JSON file")
	fmt.Println("  -seed    Synthetic trace generator seed")
	fmt.Println("  -stride  Synthetic trace generator memory stride")
	fmt.Println("  -v       Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/oocsim' for the full CLI.")
}
