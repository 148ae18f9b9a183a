package main

import (
	"log"
	"os"
)

func main() {
	log.SetFlags(0)
	args := os.Args[1:]
	if len(args) == 0 {
		log.Fatal("need a subcommand: [order, list, hosts, history]")
	}

	subcmd := args[0]
	switch subcmd {
	case "order":
		err := order(args[1:])
		if err != nil {
			log.Fatal(err)
		}
	case "list":
		err := list(args[1:])
		if err != nil {
			log.Fatal(err)
		}
	case "hosts":
		err := hosts(args[1:])
		if err != nil {
			log.Fatal(err)
		}
	case "history":
		err := history(args[1:])
		if err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("unknown subcommand: %s", subcmd)
	}
}
