package cli

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	// a missing .env file is fine
	_ = godotenv.Load()
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUICKTRIVIA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quicktrivia",
		Short:         "Trivia quiz game server with solo and multiplayer rooms",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	fs := cmd.PersistentFlags()
	fs.StringVar(&port, "port", "", "port to listen on, overrides server.port (env: QUICKTRIVIA_PORT)")
	fs.StringVar(&configPath, "config", "config/config.yaml", "path to YAML config (env: QUICKTRIVIA_CONFIG)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewPlayCmd(&configPath))
	return cmd
}
