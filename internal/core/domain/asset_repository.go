package domain

import "context"

// AssetRepository is the abstraction for any kind of database intended to
// cache the AssetInfo resolved from remote registries.
type AssetRepository interface {
	// AddAsset caches the info of an asset. Adding twice is idempotent.
	AddAsset(ctx context.Context, asset *AssetInfo) error
	// GetAsset returns the cached info of the asset with the given hash.
	GetAsset(ctx context.Context, assetHash string) (*AssetInfo, error)
	// GetAllAssets returns all the cached assets.
	GetAllAssets(ctx context.Context) ([]AssetInfo, error)
}
