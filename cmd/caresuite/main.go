package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phillip-england/caresuite/internal/caresuitecli"
)

func main() {
	if err := caresuitecli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, caresuitecli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			caresuitecli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
