package inmemory

import (
	"context"
	"sync"

	"github.com/tide-network/tide-daemon/internal/core/domain"
)

// AssetRepositoryImpl represents an in memory cache of asset metadata.
type AssetRepositoryImpl struct {
	assets map[string]domain.AssetInfo

	lock *sync.RWMutex
}

// NewAssetRepositoryImpl returns a new empty AssetRepositoryImpl.
func NewAssetRepositoryImpl() *AssetRepositoryImpl {
	return &AssetRepositoryImpl{
		assets: map[string]domain.AssetInfo{},
		lock:   &sync.RWMutex{},
	}
}

func (r *AssetRepositoryImpl) AddAsset(
	_ context.Context, asset *domain.AssetInfo,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.assets[asset.AssetHash]; ok {
		return nil
	}
	r.assets[asset.AssetHash] = *asset
	return nil
}

func (r *AssetRepositoryImpl) GetAsset(
	_ context.Context, assetHash string,
) (*domain.AssetInfo, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	asset, ok := r.assets[assetHash]
	if !ok {
		return nil, domain.ErrAssetNotFound
	}
	return &asset, nil
}

func (r *AssetRepositoryImpl) GetAllAssets(
	_ context.Context,
) ([]domain.AssetInfo, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	assets := make([]domain.AssetInfo, 0, len(r.assets))
	for _, asset := range r.assets {
		assets = append(assets, asset)
	}
	return assets, nil
}
