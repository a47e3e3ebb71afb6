// Command ydoc-demo exercises a Doc end to end: two in-process replicas
// edit a shared text concurrently, reconcile it over the sync protocol,
// and exchange presence over the awareness channel.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ydoc-demo",
		Short: "demonstrates two replicas converging over the ydoc sync and awareness protocols",
	}
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("v2", false, "use the v2 update wire generation")
	_ = viper.BindPFlag("log-level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("v2", cmd.PersistentFlags().Lookup("v2"))
	viper.SetEnvPrefix("YDOC_DEMO")
	viper.AutomaticEnv()

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newAwarenessCmd())
	return cmd
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "concurrently edit a shared text on two replicas, then converge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncDemo(newLogger(), viper.GetBool("v2"))
		},
	}
}

func newAwarenessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "awareness",
		Short: "exchange presence state between two replicas and demonstrate eviction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAwarenessDemo(newLogger())
		},
	}
}

func printDivider(title string) {
	fmt.Printf("\n--- %s ---\n", title)
}
