// Command spawnoracle estimates daily boss spawn chances from recorded appearances.
//
// Usage:
//
//	spawnoracle serve --config configs/config.yaml
//	spawnoracle chance "Rotworm Queen (Liberty Bay)"
//	spawnoracle kill Tyrn --at "2025-06-20 17:51"
//	spawnoracle configure Tyrn --min 1 --max 30
//	spawnoracle import configs/bosses.yaml
//	spawnoracle sync-kills
package main

import (
	"os"

	"github.com/rewired-gh/spawnoracle/cmd/spawnoracle/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
