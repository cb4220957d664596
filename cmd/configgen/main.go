package main

import (
	"flag"
	"log"

	"github.com/danmuck/nonscan/internal/config"
)

const defaultPath = "cmd/nonscanctl/config.toml"

func main() {
	kind := flag.String("kind", "panel", "config kind: panel")
	output := flag.String("output", defaultPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *kind != "panel" {
		log.Fatalf("unknown kind: %s", *kind)
	}

	if *validate {
		if _, err := config.LoadPanelConfig(*input); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, *input)
		return
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, *output)
}
