package main

import (
	"fmt"
	"io"

	"github.com/csb6/purple-youtube/chat"
)

const clockLayout = "03:04:05 PM"

// printBatch writes each message as "Name (hh:mm:ss AM): text" followed by a
// blank line, in local time.
func printBatch(w io.Writer, batch []chat.Message) {
	for _, m := range batch {
		fmt.Fprintf(w, "%s (%s): %s\n\n", m.DisplayName, m.Timestamp.Local().Format(clockLayout), m.Content)
	}
}
