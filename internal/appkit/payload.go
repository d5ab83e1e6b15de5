package appkit

import (
	"moff.io/wallet-bridge/internal/chains"
)

// Network is a chain as the browser modal expects it.
type Network struct {
	ID             int64           `json:"id"`
	CAIPNetworkID  string          `json:"caipNetworkId"`
	ChainNamespace string          `json:"chainNamespace"`
	Name           string          `json:"name"`
	NativeCurrency chains.Currency `json:"nativeCurrency"`
	RPCURLs        []string        `json:"rpcUrls"`
	Testnet        bool            `json:"testnet"`
	// Transport is the kind selected for the chain when clients were built.
	Transport string `json:"transport,omitempty"`
}

// InitPayload is sent to the modal on Init.
type InitPayload struct {
	ProjectID         string    `json:"projectId"`
	Networks          []Network `json:"networks"`
	Metadata          Metadata  `json:"metadata"`
	Features          Features  `json:"features"`
	IncludeWalletIDs  []string  `json:"includeWalletIds,omitempty"`
	FeaturedWalletIDs []string  `json:"featuredWalletIds,omitempty"`
	ExcludeWalletIDs  []string  `json:"excludeWalletIds,omitempty"`
	StorageKeyPrefix  string    `json:"storageKeyPrefix"`
}

func newInitPayload(opts Options, cfg *Config) *InitPayload {
	p := &InitPayload{
		ProjectID:         cfg.ProjectID,
		Metadata:          cfg.Metadata,
		Features:          cfg.Features,
		IncludeWalletIDs:  opts.IncludeWalletIDs,
		FeaturedWalletIDs: opts.FeaturedWalletIDs,
		ExcludeWalletIDs:  opts.ExcludeWalletIDs,
		StorageKeyPrefix:  cfg.Storage.KeyPrefix(),
	}
	for _, c := range cfg.Chains {
		n := Network{
			ID:             c.ID,
			CAIPNetworkID:  c.CAIP2(),
			ChainNamespace: c.Namespace,
			Name:           c.Name,
			NativeCurrency: c.NativeCurrency,
			RPCURLs:        c.RPCURLs,
			Testnet:        c.Testnet,
		}
		if client, ok := cfg.Client(c.ID); ok {
			n.Transport = string(client.Transport.Kind())
		}
		p.Networks = append(p.Networks, n)
	}
	return p
}
