// Command favored serves the project completion and membership workflows.
package main

import (
	"context"
	"log"

	"github.com/dalemusser/waffle/app"
	"github.com/opethaiwoh/favored/internal/app/bootstrap"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		log.Fatal(err)
	}
}
