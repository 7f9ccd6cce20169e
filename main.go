// Public domain.

package main

import "github.com/soniakeys/w51fit/internal/fitprog"

func main() {
	fitprog.Main()
}
