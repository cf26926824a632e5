package main

import (
	"github.com/adityasharma0903/CCTVattendance/cmd"
	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

func main() {
	logging.Init()
	settings := conf.Setting()

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		logging.Fatal("command failed", "error", err)
	}
}
