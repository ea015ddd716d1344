package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/smallbiznis/pantry/internal/app"
	"go.uber.org/fx"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: pantry <%s>\n", strings.Join(app.Names(), "|"))
		os.Exit(2)
	}

	opts, err := app.ByName(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fx.New(opts).Run()
}
