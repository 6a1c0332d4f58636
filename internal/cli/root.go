package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/zakirhyder/huddle/internal/ui"
	"github.com/zakirhyder/huddle/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "huddle",
	Short:   "Terminal client for small-group screen-share rooms",
	Long:    `Huddle is a command-line client for real-time screen-share rooms. It joins a room through the coordinator, negotiates media directly between peers over WebRTC, and gives you chat, reactions and a shared whiteboard from the terminal.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
