package ports

import (
	"context"

	"github.com/tide-network/tide-daemon/internal/core/domain"
)

// AssetRegistry interface defines the methods to resolve display metadata of
// an asset. Resolved info is used for formatting only and never feeds any
// accounting decision.
type AssetRegistry interface {
	// ResolveAsset returns name, ticker and precision of the given asset.
	ResolveAsset(ctx context.Context, assetHash string) (*domain.AssetInfo, error)
}
