// Command operatorctl signs and sends requests to an operator service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "OPERATORCTL"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(viper.New())
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Settings resolve in order: flag,
// OPERATORCTL_* environment variable, config file.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "operatorctl",
		Short: "Client for the compute job operator service",
		Long: `operatorctl signs requests with a provider key and calls the operator
service API.

Examples:
  operatorctl start --agreement-id 0xabc --environment ocean-compute --workflow wf.json
  operatorctl status --job-id 4f1e...
  operatorctl result --job-id 4f1e... --index 0 -o out.tar`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v, cfgFile)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (yaml, json or toml)")
	pf.String("url", "http://localhost:8050", "Operator service base URL")
	pf.String("key", "", "Hex encoded provider private key used for signing")
	pf.String("owner", "", "Job owner address (defaults to the signing address)")
	pf.String("nonce", "", "Request nonce (defaults to the current time in milliseconds)")
	pf.String("admin", "", "Admin address sent on admin routes")
	for _, name := range []string{"url", "key", "owner", "nonce", "admin"} {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		newSignCmd(v),
		newStartCmd(v),
		newStatusCmd(v),
		newStopCmd(v),
		newDeleteCmd(v),
		newRunningCmd(v),
		newResultCmd(v),
		newEnvironmentsCmd(v),
		newAnnounceCmd(v),
	)
	return root
}

func loadConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}
