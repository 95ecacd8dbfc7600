// Command calview serves a merged day-by-day view of ICS calendars.
package main

import (
	"context"
	"os"

	appLog "calview/internal/log"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		appLog.Error("calview failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Sync()
}
