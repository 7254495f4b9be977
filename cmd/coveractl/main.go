package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ternarybob/covera/internal/httpclient"
)

var (
	serverURL string
	timeout   time.Duration
	jsonOut   bool
)

var rootCmd = &cobra.Command{
	Use:           "coveractl",
	Short:         "Drive catalog ingestion jobs on a covera server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(startCmd, statusCmd, stopCmd, listCmd, watchCmd, resultsCmd, categoriesCmd, versionCmd)
}

func addGlobalFlags(flags *pflag.FlagSet) {
	defaultServer := os.Getenv("COVERA_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8085"
	}
	flags.StringVarP(&serverURL, "server", "s", defaultServer, "Covera server base URL")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	flags.BoolVar(&jsonOut, "json", false, "Print raw JSON")
}

func newClient() (*httpclient.Client, error) {
	return httpclient.New(serverURL, httpclient.NewDefaultHTTPClient(timeout))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
