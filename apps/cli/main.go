package main

import (
	"github.com/mariocesar/tavern/apps/cli/cmd"

	// Protocol plugins register themselves on import.
	_ "github.com/mariocesar/tavern/packages/httpclient"
	_ "github.com/mariocesar/tavern/packages/natsmq"
	_ "github.com/mariocesar/tavern/packages/sqldb"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.Execute(version, buildTime)
}
