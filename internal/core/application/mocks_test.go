package application_test

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/mock"
	"github.com/tide-network/tide-daemon/internal/core/domain"
	"github.com/tide-network/tide-daemon/internal/core/ports"
	"github.com/vulpemventures/go-elements/elementsutil"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/payment"
)

// **** ChainSource ****

type mockChainSource struct {
	mock.Mock

	chEvents  chan ports.Event
	closeOnce sync.Once
}

func newMockChainSource() *mockChainSource {
	return &mockChainSource{chEvents: make(chan ports.Event, 16)}
}

func (m *mockChainSource) SubscribeScript(
	ctx context.Context, scriptHash string,
) (string, error) {
	args := m.Called(ctx, scriptHash)

	var res string
	if a := args.Get(0); a != nil {
		res = a.(string)
	}
	return res, args.Error(1)
}

func (m *mockChainSource) UnsubscribeScript(
	ctx context.Context, scriptHash string,
) error {
	args := m.Called(ctx, scriptHash)
	return args.Error(0)
}

func (m *mockChainSource) GetScriptHistory(
	ctx context.Context, scriptHash string,
) ([]ports.HistoryRecord, error) {
	args := m.Called(ctx, scriptHash)

	var res []ports.HistoryRecord
	if a := args.Get(0); a != nil {
		res = a.([]ports.HistoryRecord)
	}
	return res, args.Error(1)
}

func (m *mockChainSource) GetTransaction(
	ctx context.Context, txid string,
) (string, error) {
	args := m.Called(ctx, txid)

	var res string
	if a := args.Get(0); a != nil {
		res = a.(string)
	}
	return res, args.Error(1)
}

func (m *mockChainSource) GetBlockHeader(
	ctx context.Context, height int64,
) (string, error) {
	args := m.Called(ctx, height)

	var res string
	if a := args.Get(0); a != nil {
		res = a.(string)
	}
	return res, args.Error(1)
}

func (m *mockChainSource) BroadcastTransaction(
	ctx context.Context, txHex string,
) (string, error) {
	args := m.Called(ctx, txHex)

	var res string
	if a := args.Get(0); a != nil {
		res = a.(string)
	}
	return res, args.Error(1)
}

func (m *mockChainSource) SubscribeTip(ctx context.Context) (*ports.Tip, error) {
	args := m.Called(ctx)

	var res *ports.Tip
	if a := args.Get(0); a != nil {
		res = a.(*ports.Tip)
	}
	return res, args.Error(1)
}

func (m *mockChainSource) EstimateFee(
	ctx context.Context, targetBlocks int,
) (uint64, error) {
	args := m.Called(ctx, targetBlocks)

	var res uint64
	if a := args.Get(0); a != nil {
		res = a.(uint64)
	}
	return res, args.Error(1)
}

func (m *mockChainSource) Notifications() <-chan ports.Event {
	return m.chEvents
}

func (m *mockChainSource) Close() {
	m.closeOnce.Do(func() { close(m.chEvents) })
}

func (m *mockChainSource) pushEvent(event ports.Event) {
	m.chEvents <- event
}

// **** Signer ****

type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) AccountXPub(account uint32) (string, error) {
	args := m.Called(account)

	var res string
	if a := args.Get(0); a != nil {
		res = a.(string)
	}
	return res, args.Error(1)
}

func (m *mockSigner) DeriveAddress(
	account uint32, chain int, index uint32, confidential bool,
) (*ports.AddressInfo, error) {
	args := m.Called(account, chain, index, confidential)

	var res *ports.AddressInfo
	if a := args.Get(0); a != nil {
		res = a.(*ports.AddressInfo)
	}
	return res, args.Error(1)
}

func (m *mockSigner) DeriveBlindingKeyPair(
	script []byte,
) ([]byte, []byte, error) {
	args := m.Called(script)

	var res []byte
	if a := args.Get(0); a != nil {
		res = a.([]byte)
	}
	var res1 []byte
	if a := args.Get(1); a != nil {
		res1 = a.([]byte)
	}
	return res, res1, args.Error(2)
}

func (m *mockSigner) SignInput(
	ctx context.Context, derivationPath string, sigHash []byte,
) ([]byte, []byte, error) {
	args := m.Called(ctx, derivationPath, sigHash)

	var res []byte
	if a := args.Get(0); a != nil {
		res = a.([]byte)
	}
	var res1 []byte
	if a := args.Get(1); a != nil {
		res1 = a.([]byte)
	}
	return res, res1, args.Error(2)
}

// **** AssetRegistry ****

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) ResolveAsset(
	ctx context.Context, assetHash string,
) (*domain.AssetInfo, error) {
	args := m.Called(ctx, assetHash)

	var res *domain.AssetInfo
	if a := args.Get(0); a != nil {
		res = a.(*domain.AssetInfo)
	}
	return res, args.Error(1)
}

// **** Notifier ****

// capturingNotifier collects the published events so that tests can assert
// on them.
type capturingNotifier struct {
	mu     sync.Mutex
	events []ports.WalletEvent
}

func (n *capturingNotifier) Subscribe(
	topics ...string,
) (string, <-chan ports.WalletEvent, error) {
	return "", nil, nil
}

func (n *capturingNotifier) Unsubscribe(id string) error { return nil }

func (n *capturingNotifier) Publish(event ports.WalletEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *capturingNotifier) Close() {}

func (n *capturingNotifier) eventsForTopic(topic string) []ports.WalletEvent {
	n.mu.Lock()
	defer n.mu.Unlock()

	events := make([]ports.WalletEvent, 0, len(n.events))
	for _, event := range n.events {
		if event.Topic == topic {
			events = append(events, event)
		}
	}
	return events
}

// **** key backed signer ****

// fixedKeySigner is a single key signer. Every derived address pays to the
// P2WPKH script of its one signing key, which keeps signing tests
// independent from BIP32 derivation.
type fixedKeySigner struct {
	prvkey *btcec.PrivateKey
	pay    *payment.Payment
}

func newFixedKeySigner() (*fixedKeySigner, error) {
	prvkey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	pay := payment.FromPublicKey(prvkey.PubKey(), &network.Regtest, nil)
	return &fixedKeySigner{prvkey: prvkey, pay: pay}, nil
}

func (s *fixedKeySigner) AccountXPub(account uint32) (string, error) {
	return "xpub-fixed-key", nil
}

func (s *fixedKeySigner) DeriveAddress(
	account uint32, chain int, index uint32, confidential bool,
) (*ports.AddressInfo, error) {
	addr, err := s.pay.WitnessPubKeyHash()
	if err != nil {
		return nil, err
	}
	return &ports.AddressInfo{
		Address:        addr,
		Script:         s.pay.WitnessScript,
		ScriptHash:     electrumScriptHash(s.pay.WitnessScript),
		DerivationPath: fmt.Sprintf("%d'/%d/%d", account, chain, index),
	}, nil
}

func (s *fixedKeySigner) DeriveBlindingKeyPair(
	script []byte,
) ([]byte, []byte, error) {
	return nil, nil, nil
}

func (s *fixedKeySigner) SignInput(
	ctx context.Context, derivationPath string, sigHash []byte,
) ([]byte, []byte, error) {
	sig := ecdsa.Sign(s.prvkey, sigHash)
	return sig.Serialize(), s.prvkey.PubKey().SerializeCompressed(), nil
}

func electrumScriptHash(script []byte) string {
	hash := sha256.Sum256(script)
	return hex.EncodeToString(elementsutil.ReverseBytes(hash[:]))
}

func randomBytes(len int) []byte {
	b := make([]byte, len)
	rand.Read(b)
	return b
}

func randomHex(len int) string {
	return hex.EncodeToString(randomBytes(len))
}
