package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// Pyth reads prices from a Pyth Hermes endpoint. A registration's Feed is
// the hex price feed id.
type Pyth struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	shared     domain.RateLimiter
}

// pythQuotaKey names the Hermes budget shared by every replica.
const pythQuotaKey = "oracle:pyth"

// NewPyth creates a Hermes client limited to rps requests per second.
//
// baseURL is the Hermes root, e.g. "https://hermes.pyth.network".
func NewPyth(baseURL string, rps float64, burst int) *Pyth {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Pyth{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// ShareLimit makes p draw on l's Wait budget instead of its own bucket, so
// replicas behind one Hermes quota do not each spend it in full.
func (p *Pyth) ShareLimit(l domain.RateLimiter) *Pyth {
	p.shared = l
	return p
}

func (p *Pyth) wait(ctx context.Context) error {
	if p.shared != nil {
		return p.shared.Wait(ctx, pythQuotaKey)
	}
	return p.limiter.Wait(ctx)
}

type hermesPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type hermesResponse struct {
	Parsed []struct {
		ID    string      `json:"id"`
		Price hermesPrice `json:"price"`
	} `json:"parsed"`
}

// LatestPrice implements domain.PriceSource.
func (p *Pyth) LatestPrice(ctx context.Context, reg domain.OracleRegistration) (domain.PriceData, error) {
	feed := strings.TrimPrefix(strings.ToLower(reg.Feed), "0x")
	if feed == "" {
		return domain.PriceData{}, fmt.Errorf("pyth: empty feed id")
	}
	if err := p.wait(ctx); err != nil {
		return domain.PriceData{}, fmt.Errorf("pyth: rate limit: %w", err)
	}

	params := url.Values{}
	params.Add("ids[]", feed)
	params.Set("parsed", "true")
	body, err := p.doGet(ctx, "/v2/updates/price/latest?"+params.Encode())
	if err != nil {
		return domain.PriceData{}, fmt.Errorf("pyth: latest price %s: %w", feed, err)
	}

	var resp hermesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PriceData{}, fmt.Errorf("pyth: decode price: %w", err)
	}
	for _, u := range resp.Parsed {
		if strings.TrimPrefix(strings.ToLower(u.ID), "0x") != feed {
			continue
		}
		price, ok := new(big.Int).SetString(u.Price.Price, 10)
		if !ok {
			return domain.PriceData{}, fmt.Errorf("pyth: bad price %q", u.Price.Price)
		}
		data := domain.PriceData{
			Price:   price,
			Expo:    u.Price.Expo,
			HasExpo: true,
		}
		if conf, ok := new(big.Int).SetString(u.Price.Conf, 10); ok {
			data.Conf = conf
		}
		if u.Price.PublishTime > 0 {
			data.UpdatedAt = time.Unix(u.Price.PublishTime, 0).UTC()
		}
		return data, nil
	}
	return domain.PriceData{}, fmt.Errorf("pyth: feed %s missing from response", feed)
}

func (p *Pyth) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
