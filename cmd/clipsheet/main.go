package main

import (
	"os"

	"horse.fit/clipsheet/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
