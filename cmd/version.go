package cmd

import (
	"fmt"
	"runtime"
	rtdebug "runtime/debug"

	"github.com/spf13/cobra"
)

// Version versão da aplicação (definida via -ldflags "-X anomaly-watchdog/cmd.Version=...")
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Exibir versão da aplicação",
	Long:  `Exibe a versão atual do anomaly-watchdog e informações de build.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("anomaly-watchdog versão %s\n", Version)
		fmt.Printf("Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

		if Version == "dev" {
			if info, ok := rtdebug.ReadBuildInfo(); ok {
				for _, setting := range info.Settings {
					if setting.Key == "vcs.revision" {
						fmt.Printf("Commit: %s\n", setting.Value)
					}
				}
			}
			fmt.Println("ℹ️  Versão de desenvolvimento")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
