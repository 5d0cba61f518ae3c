package dbbadger

import (
	"context"

	"github.com/timshannon/badgerhold/v4"

	"github.com/tide-network/tide-daemon/internal/core/domain"
)

type assetRepositoryImpl struct {
	store *badgerhold.Store
}

// NewAssetRepositoryImpl initializes a badger implementation of the
// domain.AssetRepository.
func NewAssetRepositoryImpl(store *badgerhold.Store) domain.AssetRepository {
	return assetRepositoryImpl{store}
}

func (r assetRepositoryImpl) AddAsset(
	ctx context.Context, asset *domain.AssetInfo,
) error {
	if err := r.store.Insert(asset.AssetHash, *asset); err != nil {
		if err == badgerhold.ErrKeyExists {
			return nil
		}
		return err
	}
	return nil
}

func (r assetRepositoryImpl) GetAsset(
	ctx context.Context, assetHash string,
) (*domain.AssetInfo, error) {
	var asset domain.AssetInfo
	if err := r.store.Get(assetHash, &asset); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrAssetNotFound
		}
		return nil, err
	}
	return &asset, nil
}

func (r assetRepositoryImpl) GetAllAssets(
	ctx context.Context,
) ([]domain.AssetInfo, error) {
	assets := make([]domain.AssetInfo, 0)
	if err := r.store.Find(&assets, &badgerhold.Query{}); err != nil {
		return nil, err
	}
	return assets, nil
}
