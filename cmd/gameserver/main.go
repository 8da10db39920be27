package main

import "github.com/sectorwars/gameserver/internal/adapters/cli"

func main() {
	cli.Execute()
}
