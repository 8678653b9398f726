package main

import (
	approuters "Bridgeup/internal/app_routers"
	"Bridgeup/internal/configuration"
	"flag"
	"log"
)

func main() {
	configPath := flag.String("config", "config.dev.json", "path to the JSON config file")
	flag.Parse()

	container, err := configuration.BuildContainer(*configPath)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	// Ensure cleanup on shutdown
	defer container.Close()

	// Setup routers
	approuters.StartServer(container)
}
