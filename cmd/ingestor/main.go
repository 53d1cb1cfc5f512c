package main

import "github.com/cyl19970726/haigo-sub001/internal/cli"

func main() {
	cli.Execute()
}
