package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"miniapp-server/internal/domain"
)

const factoryABI = `[
	{"name":"createCoin","type":"function","stateMutability":"nonpayable","inputs":[{"name":"payoutRecipient","type":"address"},{"name":"uri","type":"string"},{"name":"name","type":"string"},{"name":"symbol","type":"string"}],"outputs":[{"name":"coin","type":"address"}]},
	{"name":"CoinCreated","type":"event","inputs":[{"name":"coin","type":"address","indexed":true},{"name":"creator","type":"address","indexed":true}]}
]`

const buyABI = `[{"name":"buy","type":"function","stateMutability":"payable","inputs":[{"name":"recipient","type":"address"},{"name":"minAmountOut","type":"uint256"}],"outputs":[{"name":"amountOut","type":"uint256"}]}]`

const tokenSymbol = "VNFT"

// slippageBps is the tolerated shortfall on the buy output (5%).
const slippageBps = 500

// CreateParams describes the coin minted for a generated video.
type CreateParams struct {
	Prompt   string
	VideoURL string
}

// Deployer mints a coin for a video and buys into an existing one. The buy
// amount comes from the caller, in wei.
type Deployer interface {
	CreateToken(ctx context.Context, params CreateParams) (string, error)
	BuyToken(ctx context.Context, tokenAddress string, amountWei *big.Int) (string, error)
}

// TokenName derives a display name from the originating prompt. The prompt
// is title-cased and truncated so wallets render it cleanly.
func TokenName(prompt string) string {
	name := cases.Title(language.English).String(strings.TrimSpace(prompt))
	runes := []rune(name)
	if len(runes) > 30 {
		name = string(runes[:30]) + "..."
	}
	if name == "" {
		name = "Untitled"
	}
	return "Video NFT: " + name
}

// MockDeployer answers without a chain. Addresses and hashes are derived
// from the inputs so repeated calls agree. Selected with PAYMENT_MODE=mock.
type MockDeployer struct{}

func (MockDeployer) CreateToken(_ context.Context, params CreateParams) (string, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return "", fmt.Errorf("%w: prompt is required", domain.ErrValidation)
	}
	sum := sha256.Sum256([]byte("mock-coin:" + params.Prompt + ":" + params.VideoURL))
	return common.BytesToAddress(sum[:20]).Hex(), nil
}

func (MockDeployer) BuyToken(_ context.Context, tokenAddress string, amountWei *big.Int) (string, error) {
	if !common.IsHexAddress(tokenAddress) {
		return "", fmt.Errorf("%w: invalid token address", domain.ErrValidation)
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	sum := sha256.Sum256([]byte("mock-buy:" + common.HexToAddress(tokenAddress).Hex() + ":" + amountWei.String()))
	return "0x" + hex.EncodeToString(sum[:]), nil
}

var _ Deployer = MockDeployer{}

// EthOptions configures the on-chain deployer.
type EthOptions struct {
	RPCURL      string
	ChainID     int64
	PrivateKey  string
	Factory     string
	Payout      string
	WaitTimeout time.Duration
}

// EthDeployer drives the coin factory contract. Selected with
// PAYMENT_MODE=onchain.
type EthDeployer struct {
	opts    EthOptions
	factory abi.ABI
	coin    abi.ABI
}

func NewEthDeployer(opts EthOptions) (*EthDeployer, error) {
	if opts.RPCURL == "" {
		return nil, fmt.Errorf("token: rpc url is required")
	}
	if opts.PrivateKey == "" {
		return nil, fmt.Errorf("token: private key is required")
	}
	if !common.IsHexAddress(opts.Factory) {
		return nil, fmt.Errorf("token: invalid factory address %q", opts.Factory)
	}
	if !common.IsHexAddress(opts.Payout) {
		return nil, fmt.Errorf("token: invalid payout address %q", opts.Payout)
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 2 * time.Minute
	}
	factory, err := abi.JSON(strings.NewReader(factoryABI))
	if err != nil {
		return nil, fmt.Errorf("token: parse factory abi: %w", err)
	}
	coin, err := abi.JSON(strings.NewReader(buyABI))
	if err != nil {
		return nil, fmt.Errorf("token: parse coin abi: %w", err)
	}
	return &EthDeployer{opts: opts, factory: factory, coin: coin}, nil
}

// CreateToken mints a coin through the factory and returns its address,
// read from the CoinCreated event in the mined receipt.
func (d *EthDeployer) CreateToken(ctx context.Context, params CreateParams) (string, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return "", fmt.Errorf("%w: prompt is required", domain.ErrValidation)
	}

	client, auth, err := d.connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	contract := bind.NewBoundContract(common.HexToAddress(d.opts.Factory), d.factory, client, client, client)
	tx, err := contract.Transact(auth, "createCoin",
		common.HexToAddress(d.opts.Payout), params.VideoURL, TokenName(params.Prompt), tokenSymbol)
	if err != nil {
		return "", fmt.Errorf("token: create: %w", err)
	}

	receipt, err := d.waitMined(ctx, client, tx)
	if err != nil {
		return "", err
	}

	createdTopic := d.factory.Events["CoinCreated"].ID
	for _, lg := range receipt.Logs {
		if len(lg.Topics) >= 2 && lg.Topics[0] == createdTopic {
			return common.BytesToAddress(lg.Topics[1].Bytes()[12:]).Hex(), nil
		}
	}
	return "", fmt.Errorf("token: transaction %s emitted no CoinCreated event", tx.Hash().Hex())
}

// BuyToken trades the requested amount into an existing coin and returns
// the transaction hash once mined. The amount is also the slippage base
// for the minimum acceptable output.
func (d *EthDeployer) BuyToken(ctx context.Context, tokenAddress string, amountWei *big.Int) (string, error) {
	if !common.IsHexAddress(tokenAddress) {
		return "", fmt.Errorf("%w: invalid token address", domain.ErrValidation)
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	client, auth, err := d.connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	auth.Value = new(big.Int).Set(amountWei)
	minOut := new(big.Int).Mul(amountWei, big.NewInt(10000-slippageBps))
	minOut.Div(minOut, big.NewInt(10000))

	contract := bind.NewBoundContract(common.HexToAddress(tokenAddress), d.coin, client, client, client)
	tx, err := contract.Transact(auth, "buy", auth.From, minOut)
	if err != nil {
		return "", fmt.Errorf("token: buy: %w", err)
	}
	if _, err := d.waitMined(ctx, client, tx); err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

func (d *EthDeployer) connect(ctx context.Context) (*ethclient.Client, *bind.TransactOpts, error) {
	client, err := ethclient.DialContext(ctx, d.opts.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("token: dial node: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(d.opts.PrivateKey, "0x"))
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("token: parse key: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(d.opts.ChainID))
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("token: build transactor: %w", err)
	}
	auth.Context = ctx
	return client, auth, nil
}

func (d *EthDeployer) waitMined(ctx context.Context, client *ethclient.Client, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.opts.WaitTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, client, tx)
	if err != nil {
		return nil, fmt.Errorf("token: wait mined: %w", err)
	}
	if receipt.Status != 1 {
		return nil, fmt.Errorf("token: transaction %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}

var _ Deployer = (*EthDeployer)(nil)
