package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tide-network/tide-daemon/internal/core/domain"
	"github.com/tide-network/tide-daemon/internal/core/ports"
	"github.com/tide-network/tide-daemon/pkg/circuitbreaker"
	"github.com/vulpemventures/go-elements/network"
)

const requestTimeout = 15 * time.Second

var (
	// ErrNullRegistryURL ...
	ErrNullRegistryURL = errors.New("registry url must not be null")
	// ErrNullAssetRepository ...
	ErrNullAssetRepository = errors.New("asset repository must not be null")
)

// service resolves asset display metadata from an HTTP registry and caches
// every answer in the asset repository. Resolved info never feeds selection
// or accounting, a miss only degrades formatting.
type service struct {
	baseURL string
	repo    domain.AssetRepository
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewService returns an AssetRegistry backed by the HTTP registry at
// baseURL. The policy asset of the network is seeded in the cache since
// registries do not list it.
func NewService(
	baseURL string, repo domain.AssetRepository, net *network.Network,
) (ports.AssetRegistry, error) {
	if baseURL == "" {
		return nil, ErrNullRegistryURL
	}
	if repo == nil {
		return nil, ErrNullAssetRepository
	}

	svc := &service{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		repo:    repo,
		client:  &http.Client{Timeout: requestTimeout},
		cb:      circuitbreaker.NewCircuitBreaker("asset-registry"),
	}
	if net != nil {
		if err := repo.AddAsset(context.Background(), &domain.AssetInfo{
			AssetHash: net.AssetID,
			Name:      "Liquid Bitcoin",
			Ticker:    "L-BTC",
			Precision: 8,
		}); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

func (s *service) ResolveAsset(
	ctx context.Context, assetHash string,
) (*domain.AssetInfo, error) {
	asset, err := s.repo.GetAsset(ctx, assetHash)
	if err == nil {
		return asset, nil
	}
	if err != domain.ErrAssetNotFound {
		return nil, err
	}

	asset, err = s.fetchAsset(ctx, assetHash)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddAsset(ctx, asset); err != nil {
		log.WithError(err).Warnf(
			"registry: failed to cache asset %s", assetHash,
		)
	}
	return asset, nil
}

type assetResponse struct {
	AssetID   string `json:"asset_id"`
	Name      string `json:"name"`
	Ticker    string `json:"ticker"`
	Precision uint   `json:"precision"`
}

func (s *service) fetchAsset(
	ctx context.Context, assetHash string,
) (*domain.AssetInfo, error) {
	url := fmt.Sprintf("%s/%s", s.baseURL, assetHash)
	iPayload, err := s.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		res, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		if res.StatusCode == http.StatusNotFound {
			return nil, domain.ErrAssetNotFound
		}
		if res.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(res.Body)
			return nil, fmt.Errorf(
				"registry: unexpected status %d: %s", res.StatusCode, string(body),
			)
		}

		var payload assetResponse
		if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("registry: unparsable response: %w", err)
		}
		return &payload, nil
	})
	if err != nil {
		return nil, err
	}

	payload := iPayload.(*assetResponse)
	return &domain.AssetInfo{
		AssetHash: assetHash,
		Name:      payload.Name,
		Ticker:    payload.Ticker,
		Precision: payload.Precision,
	}, nil
}
