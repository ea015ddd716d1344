package main

import (
	"github.com/smallbiznis/pantry/internal/app"
	"go.uber.org/fx"
)

func main() {
	fx.New(app.Inventory()).Run()
}
