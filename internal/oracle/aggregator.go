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

	"github.com/quorumlabs/settled/internal/domain"
)

// latestRoundDataABI is the read surface of a Chainlink-style aggregator.
const latestRoundDataABI = `[{"inputs":[],"name":"latestRoundData","outputs":[
	{"internalType":"uint80","name":"roundId","type":"uint80"},
	{"internalType":"int256","name":"answer","type":"int256"},
	{"internalType":"uint256","name":"startedAt","type":"uint256"},
	{"internalType":"uint256","name":"updatedAt","type":"uint256"},
	{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
	"stateMutability":"view","type":"function"}]`

// Aggregator reads the settled outcome from an on-chain aggregator contract
// via eth_call. The contract's int256 answer is interpreted as the outcome
// index and updatedAt as the report time.
type Aggregator struct {
	client   *ethclient.Client
	contract common.Address
	parsed   abi.ABI
}

// NewAggregator connects to the RPC endpoint and wraps the aggregator at
// contract.
func NewAggregator(ctx context.Context, rpcURL string, contract common.Address) (*Aggregator, error) {
	parsed, err := abi.JSON(strings.NewReader(latestRoundDataABI))
	if err != nil {
		return nil, fmt.Errorf("oracle: parse aggregator abi: %w", err)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("oracle: dial %s: %w", rpcURL, err)
	}

	return &Aggregator{client: client, contract: contract, parsed: parsed}, nil
}

// LatestAnswer implements domain.Oracle.
func (a *Aggregator) LatestAnswer(ctx context.Context) (int64, time.Time, error) {
	data, err := a.parsed.Pack("latestRoundData")
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("oracle: pack call: %w", err)
	}

	raw, err := a.client.CallContract(ctx, ethereum.CallMsg{
		To:   &a.contract,
		Data: data,
	}, nil)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("oracle: call %s: %w", a.contract.Hex(), err)
	}

	out, err := a.parsed.Unpack("latestRoundData", raw)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("oracle: unpack answer: %w", err)
	}

	answer, ok := out[1].(*big.Int)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("oracle: unexpected answer type %T", out[1])
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("oracle: unexpected updatedAt type %T", out[3])
	}

	return answer.Int64(), time.Unix(updatedAt.Int64(), 0), nil
}

// Ref implements domain.Oracle.
func (a *Aggregator) Ref() common.Address {
	return a.contract
}

// Close releases the underlying RPC connection.
func (a *Aggregator) Close() {
	a.client.Close()
}

// Compile-time interface check.
var _ domain.Oracle = (*Aggregator)(nil)
