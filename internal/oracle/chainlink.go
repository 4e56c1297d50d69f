package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

const aggregatorABI = `[
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// ContractCaller executes read-only contract calls. *ethclient.Client
// satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Chainlink reads answers from Chainlink aggregator contracts. A
// registration's Feed is the aggregator address.
type Chainlink struct {
	caller ContractCaller
	abi    abi.ABI
	closer func()
}

// NewChainlink creates a Chainlink source on top of caller.
func NewChainlink(caller ContractCaller) (*Chainlink, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("chainlink: parse abi: %w", err)
	}
	return &Chainlink{caller: caller, abi: parsed, closer: func() {}}, nil
}

// DialChainlink connects to an Ethereum JSON-RPC endpoint.
func DialChainlink(ctx context.Context, rpcURL string) (*Chainlink, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chainlink: dial %s: %w", rpcURL, err)
	}
	c, err := NewChainlink(client)
	if err != nil {
		client.Close()
		return nil, err
	}
	c.closer = client.Close
	return c, nil
}

// Close releases the RPC connection, if any.
func (c *Chainlink) Close() error {
	c.closer()
	return nil
}

// LatestPrice implements domain.PriceSource.
func (c *Chainlink) LatestPrice(ctx context.Context, reg domain.OracleRegistration) (domain.PriceData, error) {
	if !common.IsHexAddress(reg.Feed) {
		return domain.PriceData{}, fmt.Errorf("chainlink: feed %q is not an address", reg.Feed)
	}
	addr := common.HexToAddress(reg.Feed)

	out, err := c.call(ctx, addr, "latestRoundData")
	if err != nil {
		return domain.PriceData{}, err
	}
	if len(out) != 5 {
		return domain.PriceData{}, fmt.Errorf("chainlink: latestRoundData returned %d values", len(out))
	}
	roundID, _ := out[0].(*big.Int)
	answer, _ := out[1].(*big.Int)
	updatedAt, _ := out[3].(*big.Int)
	answeredIn, _ := out[4].(*big.Int)
	if roundID == nil || answer == nil || updatedAt == nil || answeredIn == nil {
		return domain.PriceData{}, fmt.Errorf("chainlink: unexpected latestRoundData types")
	}

	data := domain.PriceData{
		Price:           answer,
		RoundID:         roundID,
		AnsweredInRound: answeredIn,
	}
	if updatedAt.Sign() > 0 && updatedAt.IsInt64() {
		data.UpdatedAt = time.Unix(updatedAt.Int64(), 0).UTC()
	}

	dec, err := c.call(ctx, addr, "decimals")
	if err != nil {
		return domain.PriceData{}, err
	}
	if len(dec) == 1 {
		if d, ok := dec[0].(uint8); ok {
			data.Expo = -int32(d)
			data.HasExpo = true
		}
	}
	return data, nil
}

func (c *Chainlink) call(ctx context.Context, addr common.Address, method string) ([]interface{}, error) {
	input, err := c.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("chainlink: pack %s: %w", method, err)
	}
	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("chainlink: call %s on %s: %w", method, addr.Hex(), err)
	}
	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("chainlink: unpack %s: %w", method, err)
	}
	return out, nil
}
