// Command convictionctl talks to a running convictiond over its HTTP API.
// Mutating commands are signed with the operator key from the config file,
// the environment or --key.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/convictionmarket/internal/config"
	"github.com/alanyoungcy/convictionmarket/internal/crypto"
)

var (
	cfgFile string
	apiURL  string
	keyHex  string
)

func main() {
	root := &cobra.Command{
		Use:           "convictionctl",
		Short:         "Operate a conviction market engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file holding the [operator] section")
	root.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (default from config)")
	root.PersistentFlags().StringVar(&keyHex, "key", "", "hex private key used to sign requests")

	root.AddCommand(
		keysCmd(),
		marketsCmd(),
		oracleCmd(),
		predictCmd(),
		positionsCmd(),
		settingsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newClient builds an API client. The signer is loaded only when signed
// is true so read-only commands work without a key.
func newClient(signed bool) (*client, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	base := apiURL
	if base == "" {
		base = cfg.Operator.APIURL
	}
	c := newAPIClient(base, os.Stdout)
	if !signed {
		return c, nil
	}
	src := crypto.KeySource{
		RawPrivateKey:    cfg.Operator.PrivateKey,
		EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
		KeyPassword:      cfg.Operator.KeyPassword,
	}
	if keyHex != "" {
		src = crypto.KeySource{RawPrivateKey: keyHex}
	}
	signer, err := crypto.LoadSigner(src)
	if err != nil {
		return nil, err
	}
	c.signer = signer
	return c, nil
}
