package appkit

import (
	"context"

	"moff.io/wallet-bridge/internal/config"
	"moff.io/wallet-bridge/pkg/log"
)

// Bootstrap runs Init with the options of the configuration file when the
// process starts.
type Bootstrap struct {
	kit  *AppKit
	opts Options
}

func NewBootstrap(kit *AppKit) *Bootstrap {
	return &Bootstrap{kit: kit}
}

func (b *Bootstrap) Apply(conf *config.Configuration) {
	b.opts = OptionsFromConfig(conf.AppKit)
}

func (b *Bootstrap) Start(ctx context.Context) {
	if b.opts.ProjectID == "" {
		log.Warn("appkit - no project id configured, waiting for an init request")
		return
	}
	if _, err := b.kit.Init(ctx, b.opts); err != nil {
		log.Errorf("appkit - init from configuration:%v", err)
	}
}

// OptionsFromConfig converts the appkit section of the configuration file.
func OptionsFromConfig(c config.AppKit) Options {
	return Options{
		ProjectID:       c.ProjectID,
		ChainIDs:        c.Chains,
		EnableAnalytics: c.EnableAnalytics,
		EnableOnRamp:    c.EnableOnRamp,
		Metadata: Metadata{
			Name:        c.Metadata.Name,
			Description: c.Metadata.Description,
			URL:         c.Metadata.URL,
			Icons:       c.Metadata.Icons,
		},
		Email:             c.Email,
		Socials:           c.Socials,
		ShowWallets:       c.ShowWallets,
		WalletFeatures:    c.WalletFeatures,
		Transports:        c.Transports,
		IncludeWalletIDs:  c.IncludeWalletIDs,
		FeaturedWalletIDs: c.FeaturedWalletIDs,
		ExcludeWalletIDs:  c.ExcludeWalletIDs,
	}
}
