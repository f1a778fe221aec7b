package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Status reports what the flow controller needs to gate payment: whether an
// account is attached and which network it is on.
type Status struct {
	Connected bool
	Address   string
	ChainID   int64
}

// Gateway abstracts the wallet connector.
type Gateway interface {
	Status(ctx context.Context) (Status, error)
	Connect(ctx context.Context, address string) error
}

// EthGateway backs the gateway with an RPC node. The attached address
// stands in for the connector's active account.
type EthGateway struct {
	rpcURL string

	mu      sync.Mutex
	client  *ethclient.Client
	address string
}

// NewEthGateway creates a gateway that dials the node lazily on first use.
func NewEthGateway(rpcURL string) (*EthGateway, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, fmt.Errorf("wallet: rpc url is required")
	}
	return &EthGateway{rpcURL: rpcURL}, nil
}

// Connect attaches an account address to the gateway.
func (g *EthGateway) Connect(_ context.Context, address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("wallet: invalid address %q", address)
	}
	g.mu.Lock()
	g.address = common.HexToAddress(address).Hex()
	g.mu.Unlock()
	return nil
}

// Status reports the connected account and the chain id of the node. A
// gateway with no attached address is disconnected regardless of node
// health.
func (g *EthGateway) Status(ctx context.Context) (Status, error) {
	g.mu.Lock()
	address := g.address
	g.mu.Unlock()
	if address == "" {
		return Status{}, nil
	}

	client, err := g.dial(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("wallet: dial node: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("wallet: chain id: %w", err)
	}
	return Status{Connected: true, Address: address, ChainID: chainID.Int64()}, nil
}

func (g *EthGateway) dial(ctx context.Context) (*ethclient.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	client, err := ethclient.DialContext(ctx, g.rpcURL)
	if err != nil {
		return nil, err
	}
	g.client = client
	return client, nil
}

var _ Gateway = (*EthGateway)(nil)
