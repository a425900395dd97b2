package main

import (
	"context"

	"keiba-scraper/cmd/keiba-cli/commands"
	"keiba-scraper/lib/osutil"
)

func main() {
	ctx, stop := osutil.SignalContext(context.Background())
	defer stop()
	commands.ExecuteContext(ctx)
}
