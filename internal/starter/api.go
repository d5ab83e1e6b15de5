package starter

import (
	"context"

	"moff.io/wallet-bridge/internal/config"
)

type Startable interface {
	Start(ctx context.Context)
}

type Configurable interface {
	Apply(*config.Configuration)
}

// Start applies conf to every configurable element, then starts the elements
// in order.
func Start(ctx context.Context, conf *config.Configuration, elems ...Startable) {
	for _, ele := range elems {
		if configurable, ok := ele.(Configurable); ok && conf != nil {
			configurable.Apply(conf)
		}
		ele.Start(ctx)
	}
}

type Stopable interface {
	Stop()
}

// Stop stops the elements in reverse order.
func Stop(elems ...Stopable) {
	for i := len(elems) - 1; i >= 0; i-- {
		elems[i].Stop()
	}
}
