package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/convictionmarket/internal/crypto"
	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/server/handler"
)

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Manage operator keys"}

	var password, out string
	encrypt := &cobra.Command{
		Use:   "encrypt <hex-private-key>",
		Short: "Seal a private key into an encrypted key file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return errors.New("--password is required")
			}
			data, err := crypto.EncryptKey(args[0], password)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			return os.WriteFile(out, data, 0o600)
		},
	}
	encrypt.Flags().StringVar(&password, "password", "", "key file password")
	encrypt.Flags().StringVar(&out, "out", "", "write the key file here instead of stdout")

	address := &cobra.Command{
		Use:   "address",
		Short: "Print the address of the configured key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(true)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.signer.Address().Hex())
			return nil
		},
	}

	cmd.AddCommand(encrypt, address)
	return cmd
}

func marketsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "markets", Short: "Inspect and create markets"}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List active markets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(false)
			if err != nil {
				return err
			}
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))
			return c.print(cmd.Context(), http.MethodGet, "/api/markets?"+q.Encode(), nil)
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "page offset")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one market",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := newClient(false)
			if err != nil {
				return err
			}
			return c.print(cmd.Context(), http.MethodGet, fmt.Sprintf("/api/markets/%d", id), nil)
		},
	}

	var req handler.CreateMarketRequest
	var expires string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a market (owner only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := parseExpiry(expires, time.Now())
			if err != nil {
				return err
			}
			req.ExpiresAt = at
			c, err := newClient(true)
			if err != nil {
				return err
			}
			return c.print(cmd.Context(), http.MethodPost, "/api/admin/markets", req)
		},
	}
	create.Flags().StringVar(&req.Name, "name", "", "market name")
	create.Flags().StringVar(&req.AssetSymbol, "asset", "", "asset symbol")
	create.Flags().StringVar(&req.Feed, "feed", "", "price feed reference")
	create.Flags().StringVar(&req.Threshold, "threshold", "", "threshold price in feed units")
	create.Flags().StringVar(&expires, "expires", "", "expiry as RFC3339 or a duration from now, e.g. 24h")

	var minStake string
	setMin := &cobra.Command{
		Use:   "min-stake <id>",
		Short: "Set a market's minimum stake (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := newClient(true)
			if err != nil {
				return err
			}
			return c.print(cmd.Context(), http.MethodPost, fmt.Sprintf("/api/admin/markets/%d/min-stake", id),
				handler.MinStakeRequest{MinStake: minStake})
		},
	}
	setMin.Flags().StringVar(&minStake, "amount", "", "minimum stake in base units")

	var price string
	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve an expired market from its oracle or a given price (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := newClient(true)
			if err != nil {
				return err
			}
			var body any
			if price != "" {
				body = handler.ResolveRequest{Price: price}
			}
			return c.print(cmd.Context(), http.MethodPost, fmt.Sprintf("/api/admin/markets/%d/resolve", id), body)
		},
	}
	resolve.Flags().StringVar(&price, "price", "", "resolve at this price in feed units instead of reading the oracle")

	cmd.AddCommand(list, get, create, setMin, resolve)
	return cmd
}

// parseExpiry accepts an absolute RFC3339 time or a duration from now.
func parseExpiry(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("--expires is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("invalid expiry %q", s)
	}
	return now.Add(d).UTC().Truncate(time.Second), nil
}

func oracleCmd() *cobra.Command {
	var req handler.RegisterOracleRequest
	var expo int32
	cmd := &cobra.Command{
		Use:   "oracle <market-id>",
		Short: "Register the price oracle of a market (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("expo") {
				req.ExpectedExpo = &expo
			}
			c, err := newClient(true)
			if err != nil {
				return err
			}
			return c.print(cmd.Context(), http.MethodPost, fmt.Sprintf("/api/admin/markets/%d/oracle", id), req)
		},
	}
	cmd.Flags().StringVar(&req.Provider, "provider", "chainlink", "chainlink, pyth or cache")
	cmd.Flags().StringVar(&req.Feed, "feed", "", "feed address or id")
	cmd.Flags().StringVar(&req.Threshold, "threshold", "", "override the market threshold")
	cmd.Flags().Int32Var(&expo, "expo", 0, "expected price exponent")
	return cmd
}

type feeQuote struct {
	Fee   domain.Amount `json:"fee"`
	Total domain.Amount `json:"total"`
}

func predictCmd() *cobra.Command {
	var stake, value string
	cmd := &cobra.Command{
		Use:   "predict <market-id> <bearish|bullish>",
		Short: "Stake on one outcome of a market",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := domain.ParseOutcome(args[1]); err != nil {
				return err
			}
			c, err := newClient(true)
			if err != nil {
				return err
			}
			if value == "" {
				var q feeQuote
				if err := c.call(cmd.Context(), http.MethodGet, "/api/fees/quote?stake="+url.QueryEscape(stake), nil, &q); err != nil {
					return fmt.Errorf("quote fee: %w", err)
				}
				value = q.Total.String()
			}
			return c.print(cmd.Context(), http.MethodPost, "/api/predictions", handler.PredictionRequest{
				MarketID: id,
				Outcome:  args[1],
				Stake:    stake,
				Value:    value,
			})
		},
	}
	cmd.Flags().StringVar(&stake, "stake", "", "stake in base units")
	cmd.Flags().StringVar(&value, "value", "", "value sent; defaults to stake plus the quoted fee")
	_ = cmd.MarkFlagRequired("stake")
	return cmd
}

func positionsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "positions", Short: "Inspect, claim and transfer positions"}

	idCmd := func(use, short, suffix, method string, signed bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				c, err := newClient(signed)
				if err != nil {
					return err
				}
				return c.print(cmd.Context(), method, fmt.Sprintf("/api/positions/%d%s", id, suffix), nil)
			},
		}
	}

	owned := &cobra.Command{
		Use:   "owned <address>",
		Short: "List positions held by an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(false)
			if err != nil {
				return err
			}
			return c.print(cmd.Context(), http.MethodGet, "/api/accounts/"+url.PathEscape(args[0])+"/positions", nil)
		},
	}

	var to string
	transfer := &cobra.Command{
		Use:   "transfer <id>",
		Short: "Transfer a position to another address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := newClient(true)
			if err != nil {
				return err
			}
			return c.print(cmd.Context(), http.MethodPost, fmt.Sprintf("/api/positions/%d/transfer", id), handler.TransferRequest{To: to})
		},
	}
	transfer.Flags().StringVar(&to, "to", "", "recipient address")
	_ = transfer.MarkFlagRequired("to")

	cmd.AddCommand(
		idCmd("get", "Show one position", "", http.MethodGet, false),
		idCmd("preview", "Show the payout a position would receive", "/preview", http.MethodGet, false),
		idCmd("claim", "Claim the payout of a winning position", "/claim", http.MethodPost, true),
		owned,
		transfer,
	)
	return cmd
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show engine settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(false)
			if err != nil {
				return err
			}
			return c.print(cmd.Context(), http.MethodGet, "/api/admin/settings", nil)
		},
	}

	var feeBps uint32
	var minStake, staleness, treasury string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change engine settings (owner only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req handler.SettingsRequest
			f := cmd.Flags()
			if f.Changed("fee-bps") {
				req.FeeBps = &feeBps
			}
			if f.Changed("min-stake") {
				req.GlobalMinStake = &minStake
			}
			if f.Changed("max-staleness") {
				req.MaxStaleness = &staleness
			}
			if f.Changed("treasury") {
				req.Treasury = &treasury
			}
			if req == (handler.SettingsRequest{}) {
				return errors.New("nothing to update")
			}
			c, err := newClient(true)
			if err != nil {
				return err
			}
			return c.print(cmd.Context(), http.MethodPut, "/api/admin/settings", req)
		},
	}
	update.Flags().Uint32Var(&feeBps, "fee-bps", 0, "fee in basis points")
	update.Flags().StringVar(&minStake, "min-stake", "", "global minimum stake in base units")
	update.Flags().StringVar(&staleness, "max-staleness", "", "maximum oracle price age, e.g. 1h")
	update.Flags().StringVar(&treasury, "treasury", "", "treasury address")

	cmd.AddCommand(update)
	return cmd
}
