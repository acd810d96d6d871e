package main

import (
	"flag"
	"log"

	"cardlink/config"
	"cardlink/server"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file (default: ./cardlink.yaml)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app := &server.App{}
	app.Initialize(cfg)
	if err := app.Run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
