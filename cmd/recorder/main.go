package main

import (
	"github.com/iago/food-search-pipeline/internal/app"
	"github.com/iago/food-search-pipeline/internal/config"
)

func main() {
	app.Main(config.StageRecorder, app.SetupRecorder)
}
