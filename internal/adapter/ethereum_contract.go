package adapter

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
	"golang.org/x/time/rate"

	"github.com/splits-indexer/internal/accountid"
	"github.com/splits-indexer/internal/circuitbreaker"
	"github.com/splits-indexer/internal/config"
	"github.com/splits-indexer/internal/indexererr"
)

const dripsABIJSON = `[
	{"name":"splitsHash","type":"function","stateMutability":"view",
	 "inputs":[{"name":"accountId","type":"uint256"}],
	 "outputs":[{"name":"currSplitsHash","type":"bytes32"}]},
	{"name":"ownerOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"accountId","type":"uint256"}],
	 "outputs":[{"name":"owner","type":"address"}]}
]`

const repoDriverABIJSON = `[
	{"name":"calcAccountId","type":"function","stateMutability":"view",
	 "inputs":[{"name":"forge","type":"uint8"},{"name":"name","type":"bytes"}],
	 "outputs":[{"name":"accountId","type":"uint256"}]},
	{"name":"ownerOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"accountId","type":"uint256"}],
	 "outputs":[{"name":"owner","type":"address"}]}
]`

// EthereumContract implements DripsContract over an Ethereum RPC endpoint.
// Calls are rate limited, time bounded and guarded by a circuit breaker.
type EthereumContract struct {
	client      *ethclient.Client
	dripsAddr   common.Address
	repoAddr    common.Address
	dripsABI    abi.ABI
	repoABI     abi.ABI
	limiter     *rate.Limiter
	breaker     *circuitbreaker.CircuitBreaker
	callTimeout time.Duration
}

// NewEthereumContract creates a contract caller from chain configuration
func NewEthereumContract(cfg *config.ChainConfig) (*EthereumContract, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint: %w", err)
	}
	return newEthereumContract(client, cfg)
}

// NewEthereumContractWithClient reuses an already dialed RPC client
func NewEthereumContractWithClient(client *ethclient.Client, cfg *config.ChainConfig) (*EthereumContract, error) {
	return newEthereumContract(client, cfg)
}

func newEthereumContract(client *ethclient.Client, cfg *config.ChainConfig) (*EthereumContract, error) {
	dripsABI, err := abi.JSON(strings.NewReader(dripsABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse drips ABI: %w", err)
	}
	repoABI, err := abi.JSON(strings.NewReader(repoDriverABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse repo driver ABI: %w", err)
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 20
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &EthereumContract{
		client:      client,
		dripsAddr:   common.HexToAddress(cfg.DripsContract),
		repoAddr:    common.HexToAddress(cfg.RepoDriver),
		dripsABI:    dripsABI,
		repoABI:     repoABI,
		limiter:     rate.NewLimiter(rate.Limit(rps), rps),
		breaker:     circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("chain-rpc")),
		callTimeout: timeout,
	}, nil
}

// call packs, executes and unpacks one read-only contract call
func (c *EthereumContract) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, indexererr.Transport("RPC_RATE_WAIT", err)
	}

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, indexererr.Validation("RPC_PACK", "failed to pack %s call: %v", method, err)
	}

	var raw []byte
	err = c.breaker.Execute(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		var callErr error
		raw, callErr = c.client.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, indexererr.Transport("RPC_CALL_"+strings.ToUpper(method), err)
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, indexererr.Transport("RPC_UNPACK", err)
	}
	return out, nil
}

// SplitsHash returns the on-chain receiver-set hash for an account
func (c *EthereumContract) SplitsHash(ctx context.Context, account accountid.AccountID) (common.Hash, error) {
	out, err := c.call(ctx, c.dripsAddr, c.dripsABI, "splitsHash", account.Big())
	if err != nil {
		return common.Hash{}, err
	}
	hash, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, indexererr.Transport("RPC_DECODE", fmt.Errorf("splitsHash returned unexpected type %T", out[0]))
	}
	return common.Hash(hash), nil
}

// OwnerOf returns the live owner of an owned account. Project ownership
// lives on the repo driver; other drivers answer through the drips hub.
func (c *EthereumContract) OwnerOf(ctx context.Context, account accountid.AccountID) (common.Address, error) {
	to, contractABI := c.dripsAddr, c.dripsABI
	if account.Driver() == accountid.DriverProject {
		to, contractABI = c.repoAddr, c.repoABI
	}
	out, err := c.call(ctx, to, contractABI, "ownerOf", account.Big())
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, indexererr.Transport("RPC_DECODE", fmt.Errorf("ownerOf returned unexpected type %T", out[0]))
	}
	return owner, nil
}

// CalcAccountID asks the repo driver for the deterministic project ID of
// a forge source
func (c *EthereumContract) CalcAccountID(ctx context.Context, forge uint8, name string) (accountid.AccountID, error) {
	out, err := c.call(ctx, c.repoAddr, c.repoABI, "calcAccountId", forge, []byte(name))
	if err != nil {
		return accountid.AccountID{}, err
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return accountid.AccountID{}, indexererr.Transport("RPC_DECODE", fmt.Errorf("calcAccountId returned unexpected type %T", out[0]))
	}
	return accountid.FromBig(raw)
}
