package main

import "ohlcv-analyst/internal/cli"

func main() {
	cli.Execute()
}
