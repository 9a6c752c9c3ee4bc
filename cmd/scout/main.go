package main

import (
	"scout/cmd/handlers"
	"scout/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
