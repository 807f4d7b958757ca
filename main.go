package main

import (
	"os"

	"github.com/okupy/okupy/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
