// Command candlelens draws annotated candlestick charts and scores chart
// patterns against market-breadth factors.
package main

import (
	"fmt"
	"os"

	"candlelens/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
