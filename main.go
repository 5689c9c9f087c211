// The main package for the verdictcrawler executable.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/JakeFAU/verdict-crawler/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "verdictcrawler:", err)
		os.Exit(1)
	}
}
