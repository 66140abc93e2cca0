package main

import (
	"github.com/garrymei/minimodules-order/internal/app"
	"github.com/garrymei/minimodules-order/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
