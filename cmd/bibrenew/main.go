package main

import (
	"bibrenew/cmd/bibrenew/commands"
	"bibrenew/pkg/serviceutil"
)

func main() {
	ctx, stop := serviceutil.SignalContext()
	defer stop()
	commands.ExecuteContext(ctx)
}
