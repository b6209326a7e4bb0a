package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/agriledger/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile      string
	ledgerURL    string
	token        string
	actAs        string
	outputFormat string
	insecure     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agl",
	Short: "agriledger CLI",
	Long: `agl is the command-line interface for the agriledger certification ledger.

It creates certification records for harvested batches, records
verifications and disputes, and inspects the event log.

Credentials come from --token (a role token minted with 'agl token issue')
or, against a development server, from --as subject:role.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.agl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("agl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if ledgerURL == "" {
			ledgerURL = viper.GetString("ledger_url")
		}
		if ledgerURL == "" {
			ledgerURL = "http://localhost:8080"
		}
		if token == "" {
			token = viper.GetString("token")
		}
		if actAs == "" {
			actAs = viper.GetString("as")
		}
		if outputFormat != "text" && outputFormat != "json" {
			return fmt.Errorf("--format must be text or json")
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.agl/config.yaml)")
	pf.StringVar(&ledgerURL, "ledger", "", "ledger base URL (default http://localhost:8080)")
	pf.StringVar(&token, "token", "", "role token")
	pf.StringVar(&actAs, "as", "", "development identity as subject:role")
	pf.StringVar(&outputFormat, "format", "text", "output format: text or json")
	pf.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification (development only)")

	rootCmd.AddCommand(recordCmd, metricsCmd, ledgerCmd, tokenCmd, archiveCmd, versionCmd)
}

// newClient builds a client from the global flags.
func newClient() (*client.Client, error) {
	var opts []client.Option
	if insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	switch {
	case token != "":
		opts = append(opts, client.WithBearerToken(token))
	case actAs != "":
		subject, role, ok := strings.Cut(actAs, ":")
		if !ok || subject == "" {
			return nil, fmt.Errorf("--as must be subject:role, got %q", actAs)
		}
		opts = append(opts, client.WithDevIdentity(subject, role))
	}
	return client.New(ledgerURL, opts...)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("agl", version)
	},
}
