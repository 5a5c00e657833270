// Command douyinlive watches a Douyin live room: it resolves the room,
// connects to the webcast push service, prints the webcast events to the
// console, and appends them as NDJSON records to an event log file.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		webRID  string
		suffix  string
		cfgFile string
	)

	cmd := &cobra.Command{
		Use:   "douyinlive",
		Short: "Watch a Douyin live room's webcast stream",
		Long: `douyinlive maintains a connection to a Douyin live room's webcast
push service and records what happens in the room: chat, gifts, likes,
entrances, audience statistics, and lifecycle events.

Events are printed to the console and appended to events_<suffix>.log
as NDJSON, one record per webcast message.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, webRID, suffix)
		},
	}

	cmd.Flags().StringVarP(&webRID, "room", "r", "74083423272", "web_rid of the live room to watch")
	cmd.Flags().StringVarP(&suffix, "log-suffix", "s",
		time.Now().Format("2006-01-02_15-04-05"), "suffix for the event log file name")
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default douyinlive.yaml in the working directory)")

	return cmd
}
