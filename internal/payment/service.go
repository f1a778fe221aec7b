package payment

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
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"miniapp-server/internal/domain"
)

// buyABI mirrors the coin contract's payable buy entrypoint.
const buyABI = `[{"name":"buy","type":"function","stateMutability":"payable","inputs":[{"name":"recipient","type":"address"},{"name":"minAmountOut","type":"uint256"}],"outputs":[{"name":"amountOut","type":"uint256"}]}]`

// slippageBps is the tolerated shortfall on the buy output (5%).
const slippageBps = 500

// Service executes the fixed-amount trade that unlocks a video. It fails
// closed: any error aborts without producing a receipt.
type Service interface {
	Execute(ctx context.Context, videoID string) (*domain.Receipt, error)
}

// MockService simulates a successful trade without touching a chain. The
// receipt is deterministic for a given video id so tests and local runs
// are reproducible. Selected with PAYMENT_MODE=mock.
type MockService struct {
	AmountWei *big.Int
	Payer     string
}

func (s *MockService) Execute(_ context.Context, videoID string) (*domain.Receipt, error) {
	if videoID == "" {
		return nil, fmt.Errorf("%w: no video to pay for", domain.ErrPayment)
	}
	sum := sha256.Sum256([]byte("mock-payment:" + videoID))
	payer := s.Payer
	if payer == "" {
		payer = "0x" + hex.EncodeToString(sum[12:32])
	}
	return &domain.Receipt{
		TxHash:    "0x" + hex.EncodeToString(sum[:]),
		AmountWei: new(big.Int).Set(s.AmountWei),
		Payer:     payer,
	}, nil
}

var _ Service = (*MockService)(nil)

// OnchainOptions configures the real trade path.
type OnchainOptions struct {
	RPCURL       string
	ChainID      int64
	PrivateKey   string // hex, no 0x prefix
	TokenAddress string
	Recipient    string
	AmountWei    *big.Int
	WaitTimeout  time.Duration
}

// OnchainService sends the buy call through the node and waits for the
// mined receipt. Selected with PAYMENT_MODE=onchain.
type OnchainService struct {
	opts   OnchainOptions
	parsed abi.ABI
}

// NewOnchainService validates options up front so a misconfigured service
// fails at startup, not mid-payment.
func NewOnchainService(opts OnchainOptions) (*OnchainService, error) {
	if opts.RPCURL == "" {
		return nil, fmt.Errorf("payment: rpc url is required")
	}
	if opts.PrivateKey == "" {
		return nil, fmt.Errorf("payment: private key is required")
	}
	if !common.IsHexAddress(opts.TokenAddress) {
		return nil, fmt.Errorf("payment: invalid token address %q", opts.TokenAddress)
	}
	if !common.IsHexAddress(opts.Recipient) {
		return nil, fmt.Errorf("payment: invalid recipient %q", opts.Recipient)
	}
	if opts.AmountWei == nil || opts.AmountWei.Sign() <= 0 {
		return nil, fmt.Errorf("payment: amount must be positive")
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 2 * time.Minute
	}
	parsed, err := abi.JSON(strings.NewReader(buyABI))
	if err != nil {
		return nil, fmt.Errorf("payment: parse abi: %w", err)
	}
	return &OnchainService{opts: opts, parsed: parsed}, nil
}

func (s *OnchainService) Execute(ctx context.Context, videoID string) (*domain.Receipt, error) {
	if videoID == "" {
		return nil, fmt.Errorf("%w: no video to pay for", domain.ErrPayment)
	}

	client, err := ethclient.DialContext(ctx, s.opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial node: %v", domain.ErrPayment, err)
	}
	defer client.Close()

	key, err := crypto.HexToECDSA(strings.TrimPrefix(s.opts.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: parse key: %v", domain.ErrPayment, err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(s.opts.ChainID))
	if err != nil {
		return nil, fmt.Errorf("%w: build transactor: %v", domain.ErrPayment, err)
	}
	auth.Context = ctx
	auth.Value = new(big.Int).Set(s.opts.AmountWei)

	minOut := new(big.Int).Mul(s.opts.AmountWei, big.NewInt(10000-slippageBps))
	minOut.Div(minOut, big.NewInt(10000))

	contract := bind.NewBoundContract(common.HexToAddress(s.opts.TokenAddress), s.parsed, client, client, client)
	tx, err := contract.Transact(auth, "buy", common.HexToAddress(s.opts.Recipient), minOut)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPayment, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.WaitTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, client, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: wait mined: %v", domain.ErrPayment, err)
	}
	if receipt.Status != 1 {
		return nil, fmt.Errorf("%w: transaction %s reverted", domain.ErrPayment, tx.Hash().Hex())
	}

	return &domain.Receipt{
		TxHash:    tx.Hash().Hex(),
		AmountWei: new(big.Int).Set(s.opts.AmountWei),
		Payer:     auth.From.Hex(),
	}, nil
}

var _ Service = (*OnchainService)(nil)
