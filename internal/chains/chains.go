// Package chains resolves numeric chain ids into the network list handed to
// the wallet modal.
package chains

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

const (
	NamespaceEVM    = "eip155"
	NamespaceSolana = "solana"
)

type Currency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type Chain struct {
	ID             int64    `json:"id"`
	IDHex          string   `json:"idHex"`
	Name           string   `json:"name"`
	Namespace      string   `json:"namespace"`
	NativeCurrency Currency `json:"nativeCurrency"`
	RPCURLs        []string `json:"rpcUrls"`
	Testnet        bool     `json:"testnet"`
}

// CAIP2 returns the chain reference in "namespace:id" form, e.g. "eip155:1".
func (c Chain) CAIP2() string {
	return fmt.Sprintf("%s:%d", c.Namespace, c.ID)
}

var ErrNoKnownChains = errors.New("none of the requested chain ids is known")

var (
	ether = Currency{Name: "Ether", Symbol: "ETH", Decimals: 18}

	known = []Chain{
		evm(1, "Ethereum", ether, false, "https://eth.merkle.io"),
		evm(11155111, "Sepolia", Currency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18}, true, "https://sepolia.drpc.org"),
		evm(137, "Polygon", Currency{Name: "POL", Symbol: "POL", Decimals: 18}, false, "https://polygon-rpc.com"),
		evm(80002, "Polygon Amoy", Currency{Name: "POL", Symbol: "POL", Decimals: 18}, true, "https://rpc-amoy.polygon.technology"),
		evm(56, "BNB Smart Chain", Currency{Name: "BNB", Symbol: "BNB", Decimals: 18}, false, "https://bsc-dataseed.bnbchain.org"),
		evm(97, "BNB Smart Chain Testnet", Currency{Name: "BNB", Symbol: "tBNB", Decimals: 18}, true, "https://data-seed-prebsc-1-s1.bnbchain.org:8545"),
		evm(43114, "Avalanche", Currency{Name: "Avalanche", Symbol: "AVAX", Decimals: 18}, false, "https://api.avax.network/ext/bc/C/rpc"),
		evm(43113, "Avalanche Fuji", Currency{Name: "Avalanche Fuji", Symbol: "AVAX", Decimals: 18}, true, "https://api.avax-test.network/ext/bc/C/rpc"),
		evm(250, "Fantom", Currency{Name: "Fantom", Symbol: "FTM", Decimals: 18}, false, "https://rpc.ankr.com/fantom"),
		evm(25, "Cronos Mainnet", Currency{Name: "Cronos", Symbol: "CRO", Decimals: 18}, false, "https://evm.cronos.org"),
		evm(8453, "Base", ether, false, "https://mainnet.base.org"),
		evm(84532, "Base Sepolia", Currency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18}, true, "https://sepolia.base.org"),
		evm(10, "OP Mainnet", ether, false, "https://mainnet.optimism.io"),
		evm(42161, "Arbitrum One", ether, false, "https://arb1.arbitrum.io/rpc"),
	}

	byID = func() map[int64]Chain {
		m := make(map[int64]Chain, len(known))
		for _, c := range known {
			m[c.ID] = c
		}
		return m
	}()
)

func evm(id int64, name string, currency Currency, testnet bool, rpc ...string) Chain {
	return Chain{
		ID:             id,
		IDHex:          hexutil.EncodeUint64(uint64(id)),
		Name:           name,
		Namespace:      NamespaceEVM,
		NativeCurrency: currency,
		RPCURLs:        rpc,
		Testnet:        testnet,
	}
}

// Lookup returns the chain registered under id.
func Lookup(id int64) (Chain, bool) {
	c, ok := byID[id]
	return c, ok
}

// All returns every known chain in registration order.
func All() []Chain {
	out := make([]Chain, len(known))
	copy(out, known)
	return out
}

// FromIDs maps ids onto known chains, keeping the caller's order. Unknown and
// duplicated ids are skipped; an empty result is an error because the modal
// cannot be configured without at least one network.
func FromIDs(ids []int64) ([]Chain, error) {
	out := make([]Chain, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		c, ok := byID[id]
		if !ok {
			log.Warnf("chains - unknown chain id %d skipped", id)
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrNoKnownChains, "ids %v", ids)
	}
	return out, nil
}
