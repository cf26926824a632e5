// Package cmd assembles the CLI command tree.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adityasharma0903/CCTVattendance/cmd/realtime"
	"github.com/adityasharma0903/CCTVattendance/internal/conf"
)

// RootCommand builds the root command and its subcommands.
func RootCommand(settings *conf.Settings) *cobra.Command {
	root := &cobra.Command{
		Use:   "classwatch",
		Short: "Camera-based classroom attendance and exam proctoring",
		Long: `classwatch watches classroom cameras, marks attendance for
recognized students during scheduled classes and raises alerts for
phone use during exams.`,
	}

	root.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d",
		settings.Debug, "enable debug logging")
	if err := viper.BindPFlag("debug", root.PersistentFlags().Lookup("debug")); err != nil {
		cobra.CheckErr(err)
	}

	root.AddCommand(realtime.Command(settings))
	return root
}
