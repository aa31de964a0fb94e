// Package commands cmd/vpn-coordinator/commands/root.go
package commands

import (
	"log"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/spf13/cobra"

	"github.com/skycoin/skywire-utilities/pkg/buildinfo"

	"github.com/skycoin/vpn-coordinator/cmd/vpn-coordinator/internal"
	"github.com/skycoin/vpn-coordinator/pkg/coordconfig"
)

var (
	apiAddr string
	isJSON  bool
)

func init() {
	RootCmd.PersistentFlags().StringVarP(&apiAddr, "api", "a", coordconfig.DefaultAPIAddr, "control API address\033[0m")
	RootCmd.PersistentFlags().BoolVar(&isJSON, internal.JSONString, false, "print output as json\033[0m")

	RootCmd.AddCommand(
		serveCmd,
		statusCmd,
		connectCmd,
		disconnectCmd,
		reconnectCmd,
		networkCmd,
		networksCmd,
		sessionCmd,
		rotateCmd,
		reportsCmd,
		plansCmd,
	)

	var helpflag bool
	RootCmd.SetUsageTemplate(help)
	RootCmd.PersistentFlags().BoolVarP(&helpflag, "help", "h", false, "help for "+RootCmd.Use)
	RootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	RootCmd.PersistentFlags().MarkHidden("help") //nolint
}

// RootCmd is the root command of vpn-coordinator.
var RootCmd = &cobra.Command{
	Use:   "vpn-coordinator",
	Short: "VPN connection coordinator",
	Long: `
	┬  ┬┌─┐┌┐┌   ┌─┐┌─┐┌─┐┬─┐┌┬┐┬┌┐┌┌─┐┌┬┐┌─┐┬─┐
	└┐┌┘├─┘│││───│  │ ││ │├┬┘ │││││││├─┤ │ │ │├┬┘
	 └┘ ┴  ┘└┘   └─┘└─┘└─┘┴└──┴┘┴┘└┘┴ ┴ ┴ └─┘┴└─`,
	SilenceErrors:         true,
	SilenceUsage:          true,
	DisableSuggestions:    true,
	DisableFlagsInUseLine: true,
	Version:               buildinfo.Version(),
}

// Execute executes root CLI command.
func Execute() {
	cc.Init(&cc.Config{
		RootCmd:         RootCmd,
		Headings:        cc.HiBlue + cc.Bold,
		Commands:        cc.HiBlue + cc.Bold,
		CmdShortDescr:   cc.HiBlue,
		Example:         cc.HiBlue + cc.Italic,
		ExecName:        cc.HiBlue + cc.Bold,
		Flags:           cc.HiBlue + cc.Bold,
		FlagsDescr:      cc.HiBlue,
		NoExtraNewlines: true,
		NoBottomNewline: true,
	})
	if err := RootCmd.Execute(); err != nil {
		log.Fatal("Failed to execute command: ", err)
	}
}

const help = "Usage:\r\n" +
	"  {{.UseLine}}{{if .HasAvailableSubCommands}}{{end}} {{if gt (len .Aliases) 0}}\r\n\r\n" +
	"{{.NameAndAliases}}{{end}}{{if .HasAvailableSubCommands}}\r\n\r\n" +
	"Available Commands:{{range .Commands}}{{if (or .IsAvailableCommand)}}\r\n  " +
	"{{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}\r\n\r\n" +
	"Flags:\r\n" +
	"{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}\r\n\r\n" +
	"Global Flags:\r\n" +
	"{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}\r\n\r\n"
