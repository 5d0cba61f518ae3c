package application

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/txscript"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tide-network/tide-daemon/internal/core/domain"
	"github.com/tide-network/tide-daemon/internal/core/ports"
	"github.com/tide-network/tide-daemon/pkg/wallet"
	"github.com/vulpemventures/go-elements/address"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/payment"
	"github.com/vulpemventures/go-elements/pset"
	"github.com/vulpemventures/go-elements/transaction"
)

const (
	maxFeeEstimationPasses = 10
	defaultBuildTTL        = 2 * time.Minute
	buildsCleanupInterval  = 30 * time.Second
)

// TxTarget is one requested payment of a build. Either Address or the pair
// Script/BlindingKey (hex) identifies the destination; a blinding key is
// required for script targets of confidential accounts.
type TxTarget struct {
	Asset       string `json:"asset"`
	Amount      uint64 `json:"amount"`
	Address     string `json:"address,omitempty"`
	Script      string `json:"script,omitempty"`
	BlindingKey string `json:"blinding_key,omitempty"`
}

// BuildRequest gathers the parameters of a transaction build.
type BuildRequest struct {
	Account string     `json:"account,omitempty"`
	Targets []TxTarget `json:"targets"`
	// MillisatsPerByte is the fee rate. Zero means asking the chain source
	// for an estimate; the rate is floored to domain.MinMilliSatPerByte
	// either way.
	MillisatsPerByte uint64 `json:"millisats_per_byte,omitempty"`
	// ConfThreshold is the minimum number of confirmations of the utxos
	// eligible for selection. Zero includes mempool utxos.
	ConfThreshold int64 `json:"conf_threshold,omitempty"`
}

// AddressProvider is the capability the builder uses to derive the change
// addresses of a build, keeping their scripts tracked and subscribed.
type AddressProvider interface {
	NewAddress(
		ctx context.Context, accountName string, change bool,
	) (*domain.Script, error)
}

// Builder crafts, signs and broadcasts wallet transactions on top of ledger
// snapshots. The outpoints selected by an in-flight build are locked so
// that concurrent builds cannot double select them; the ledger itself is
// never written, the spend is observed by the reconciler after broadcast.
type Builder interface {
	// Build selects utxos covering the targets plus fees, crafts the
	// unsigned transaction, blinded and fee-topped, and locks the selected
	// outpoints until the build is broadcast or expires.
	Build(ctx context.Context, req BuildRequest) (*BuildInfo, error)
	// SignAndBroadcast signs every input of the build through the signer,
	// finalizes the transaction and publishes it. Partially signed
	// transactions are never broadcast.
	SignAndBroadcast(ctx context.Context, buildID string) (string, error)

	Stop()
}

type pendingBuild struct {
	id        string
	account   string
	pset      string
	feeAmount uint64
	utxos     []*domain.Utxo
	paths     []string
	expiresAt time.Time
}

type builder struct {
	repoManager ports.RepoManager
	chainSource ports.ChainSource
	signer      ports.Signer
	addresses   AddressProvider
	net         *network.Network

	lock   *sync.Mutex
	builds map[string]*pendingBuild
	locked map[string]string

	quit     chan struct{}
	stopOnce *sync.Once
	wg       *sync.WaitGroup
}

// NewBuilder returns a builder paying fees in the policy asset of the given
// network. Expired builds are garbage collected periodically, releasing
// their outpoint locks.
func NewBuilder(
	repoManager ports.RepoManager,
	chainSource ports.ChainSource,
	signer ports.Signer,
	addresses AddressProvider,
	net *network.Network,
) Builder {
	b := &builder{
		repoManager: repoManager,
		chainSource: chainSource,
		signer:      signer,
		addresses:   addresses,
		net:         net,
		lock:        &sync.Mutex{},
		builds:      map[string]*pendingBuild{},
		locked:      map[string]string{},
		quit:        make(chan struct{}),
		stopOnce:    &sync.Once{},
		wg:          &sync.WaitGroup{},
	}
	b.wg.Add(1)
	go b.cleanupLoop()
	return b
}

func (b *builder) Stop() {
	b.stopOnce.Do(func() {
		close(b.quit)
		b.wg.Wait()
	})
}

type parsedTarget struct {
	asset       string
	amount      uint64
	script      []byte
	blindingKey []byte
}

func (b *builder) Build(
	ctx context.Context, req BuildRequest,
) (*BuildInfo, error) {
	account, err := b.repoManager.AccountRepository().GetAccount(
		ctx, req.Account,
	)
	if err != nil {
		return nil, err
	}

	targets, err := parseTargets(req.Targets, account.Confidential)
	if err != nil {
		return nil, err
	}

	millisatsPerByte := b.feeRate(ctx, req.MillisatsPerByte)

	ledger, err := b.repoManager.LedgerRepository().GetLedger(ctx, req.Account)
	if err != nil {
		if err == domain.ErrLedgerNotFound {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	// The selection, the outpoint locking and the registration of the build
	// happen under the same lock so that concurrent builds observe each
	// other's reservations.
	b.lock.Lock()
	defer b.lock.Unlock()

	spendableByAsset := b.spendableByAsset(ledger, req.ConfThreshold)

	requiredBase := make(map[string]uint64)
	for _, target := range targets {
		requiredBase[target.asset] += target.amount
	}

	feeAsset := b.net.AssetID
	selection, feeAmount, err := b.converge(
		spendableByAsset, requiredBase, feeAsset, len(targets),
		millisatsPerByte,
	)
	if err != nil {
		return nil, err
	}

	build, err := b.craft(
		ctx, account, targets, selection, requiredBase, feeAsset, feeAmount,
	)
	if err != nil {
		return nil, err
	}

	b.builds[build.id] = build
	outpoints := make([]string, 0, len(build.utxos))
	for _, utxo := range build.utxos {
		key := utxo.Key().String()
		b.locked[key] = build.id
		outpoints = append(outpoints, key)
	}

	log.Debugf(
		"builder: build %s selected %d utxos of account %s, fee %d",
		build.id, len(build.utxos), build.account, build.feeAmount,
	)
	return &BuildInfo{
		ID:            build.id,
		PsetBase64:    build.pset,
		FeeAmount:     build.feeAmount,
		SelectedUtxos: outpoints,
		ExpiresAt:     build.expiresAt.Unix(),
	}, nil
}

func (b *builder) SignAndBroadcast(
	ctx context.Context, buildID string,
) (string, error) {
	b.lock.Lock()
	build, ok := b.builds[buildID]
	if ok && time.Now().After(build.expiresAt) {
		b.releaseLocked(build)
		ok = false
	}
	b.lock.Unlock()
	if !ok {
		return "", ErrBuildNotFound
	}

	ptx, err := pset.NewPsetFromBase64(build.pset)
	if err != nil {
		return "", err
	}
	updater, err := pset.NewUpdater(ptx)
	if err != nil {
		return "", err
	}

	for i := range ptx.Inputs {
		witnessUtxo := ptx.Inputs[i].WitnessUtxo
		if witnessUtxo == nil {
			return "", &SignatureError{
				InputIndex: i,
				Err:        errors.New("missing witness utxo"),
			}
		}
		pay, err := payment.FromScript(witnessUtxo.Script, nil, nil)
		if err != nil {
			return "", &SignatureError{InputIndex: i, Err: err}
		}
		sigHash := ptx.UnsignedTx.HashForWitnessV0(
			i, pay.Script, witnessUtxo.Value, txscript.SigHashAll,
		)

		sig, pubkey, err := b.signer.SignInput(ctx, build.paths[i], sigHash[:])
		if err != nil {
			return "", &SignatureError{InputIndex: i, Err: err}
		}
		if !wallet.VerifySignature(wallet.VerifySignatureOpts{
			SigHash:   sigHash[:],
			Signature: sig,
			PubKey:    pubkey,
			Script:    witnessUtxo.Script,
		}) {
			return "", &SignatureError{
				InputIndex: i,
				Err: errors.New(
					"signature does not validate against the input script",
				),
			}
		}

		sigWithType := append(sig, byte(txscript.SigHashAll))
		if _, err := updater.Sign(
			i, sigWithType, pubkey, nil, nil,
		); err != nil {
			return "", &SignatureError{InputIndex: i, Err: err}
		}
	}

	signedPset, err := ptx.ToBase64()
	if err != nil {
		return "", err
	}
	txHex, txid, err := wallet.FinalizeAndExtractTransaction(
		wallet.FinalizeAndExtractTransactionOpts{PsetBase64: signedPset},
	)
	if err != nil {
		if err == wallet.ErrInvalidSignatures {
			return "", ErrTxNotFullySigned
		}
		return "", err
	}

	broadcastTxid, err := b.chainSource.BroadcastTransaction(ctx, txHex)
	if err != nil {
		// The build stays registered, the caller may retry until it
		// expires.
		return "", err
	}
	if broadcastTxid != txid {
		log.Warnf(
			"builder: chain source returned txid %s for transaction %s",
			broadcastTxid, txid,
		)
	}
	log.Infof("builder: broadcast transaction %s", txid)

	b.lock.Lock()
	b.releaseLocked(build)
	b.lock.Unlock()
	return txid, nil
}

// feeRate resolves the fee rate of a build in millisats per virtual byte.
func (b *builder) feeRate(ctx context.Context, requested uint64) int {
	millisatsPerByte := requested
	if millisatsPerByte == 0 {
		// Sats per kilo virtual byte and millisats per virtual byte are the
		// same unit.
		if estimated, err := b.chainSource.EstimateFee(ctx, 1); err == nil {
			millisatsPerByte = estimated
		}
	}
	if millisatsPerByte < domain.MinMilliSatPerByte {
		millisatsPerByte = domain.MinMilliSatPerByte
	}
	return int(millisatsPerByte)
}

func (b *builder) spendableByAsset(
	ledger *domain.Ledger, confThreshold int64,
) map[string][]*domain.Utxo {
	byAsset := make(map[string][]*domain.Utxo)
	for _, utxo := range ledger.SpendableUtxos(confThreshold) {
		if _, ok := b.locked[utxo.Key().String()]; ok {
			continue
		}
		byAsset[utxo.AssetHash] = append(byAsset[utxo.AssetHash], utxo)
	}
	return byAsset
}

// converge iterates the greedy selection against the fee estimate until the
// fee amount is stable. The fee depends on the transaction size, which
// depends on the number of inputs and change outputs, which depend on the
// fee.
func (b *builder) converge(
	spendableByAsset map[string][]*domain.Utxo,
	requiredBase map[string]uint64,
	feeAsset string,
	numTargets int,
	millisatsPerByte int,
) (map[string][]*domain.Utxo, uint64, error) {
	feeAmount := uint64(0)
	for pass := 0; pass < maxFeeEstimationPasses; pass++ {
		required := make(map[string]uint64, len(requiredBase)+1)
		for asset, amount := range requiredBase {
			required[asset] = amount
		}
		required[feeAsset] += feeAmount

		selection, err := selectUtxos(spendableByAsset, required)
		if err != nil {
			return nil, 0, err
		}

		numInputs := 0
		numChanges := 0
		for asset, selected := range selection {
			numInputs += len(selected)
			var total uint64
			for _, utxo := range selected {
				total += utxo.Value
			}
			leftover := total - required[asset]
			if asset == feeAsset {
				if leftover > domain.DustAmount {
					numChanges++
				}
			} else if leftover > 0 {
				numChanges++
			}
		}

		newFee := wallet.EstimateFee(
			numInputs, numTargets+numChanges, millisatsPerByte,
		)
		if newFee == feeAmount {
			return selection, feeAmount, nil
		}
		feeAmount = newFee
	}
	return nil, 0, ErrFeeEstimation
}

// selectUtxos picks utxos per asset in descending value order until the
// required amounts are covered.
func selectUtxos(
	spendableByAsset map[string][]*domain.Utxo, required map[string]uint64,
) (map[string][]*domain.Utxo, error) {
	selection := make(map[string][]*domain.Utxo, len(required))
	for asset, amount := range required {
		if amount == 0 {
			continue
		}
		var total uint64
		selected := make([]*domain.Utxo, 0)
		for _, utxo := range spendableByAsset[asset] {
			selected = append(selected, utxo)
			total += utxo.Value
			if total >= amount {
				break
			}
		}
		if total < amount {
			return nil, ErrInsufficientFunds
		}
		selection[asset] = selected
	}
	return selection, nil
}

// craft assembles the unsigned pset of the build: inputs and outputs, the
// blinding of every non fee output for confidential accounts, and the
// explicit fee output on top.
func (b *builder) craft(
	ctx context.Context,
	account *domain.Account,
	targets []parsedTarget,
	selection map[string][]*domain.Utxo,
	requiredBase map[string]uint64,
	feeAsset string,
	feeAmount uint64,
) (*pendingBuild, error) {
	pathsByScript := make(map[string]string, len(account.ScriptsByHash))
	for _, script := range account.ScriptsByHash {
		pathsByScript[script.Script] = script.DerivationPath
	}

	assets := make([]string, 0, len(selection))
	for asset := range selection {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	inputs := make([]wallet.Input, 0)
	inputBlindingData := make(map[int]wallet.BlindingData)
	paths := make([]string, 0)
	selectedUtxos := make([]*domain.Utxo, 0)
	for _, asset := range assets {
		for _, utxo := range selection[asset] {
			scriptBytes, err := hex.DecodeString(utxo.Script)
			if err != nil {
				return nil, err
			}
			path, ok := pathsByScript[utxo.Script]
			if !ok {
				return nil, fmt.Errorf(
					"no derivation path tracked for script %s", utxo.Script,
				)
			}
			inputBlindingData[len(inputs)] = wallet.BlindingData{
				Asset:        utxo.AssetHash,
				Value:        utxo.Value,
				AssetBlinder: normalizeBlinder(utxo.AssetBlinder),
				ValueBlinder: normalizeBlinder(utxo.ValueBlinder),
			}
			inputs = append(inputs, wallet.Input{
				TxID:            utxo.TxID,
				VOut:            utxo.VOut,
				Script:          scriptBytes,
				Asset:           utxo.AssetHash,
				Value:           utxo.Value,
				AssetCommitment: utxo.AssetCommitment,
				ValueCommitment: utxo.ValueCommitment,
				Nonce:           utxo.Nonce,
			})
			paths = append(paths, path)
			selectedUtxos = append(selectedUtxos, utxo)
		}
	}

	outputs := make([]*transactionOutput, 0, len(targets)+len(assets))
	for _, target := range targets {
		outputs = append(outputs, &transactionOutput{
			asset:       target.asset,
			amount:      target.amount,
			script:      target.script,
			blindingKey: target.blindingKey,
		})
	}

	// Change outputs, one per asset with a leftover. Policy asset leftovers
	// at or below the dust threshold are folded into the fee output.
	feeOutputAmount := feeAmount
	for _, asset := range assets {
		var total uint64
		for _, utxo := range selection[asset] {
			total += utxo.Value
		}
		required := requiredBase[asset]
		if asset == feeAsset {
			required += feeAmount
		}
		leftover := total - required
		if leftover == 0 {
			continue
		}
		if asset == feeAsset && leftover <= domain.DustAmount {
			feeOutputAmount += leftover
			continue
		}

		changeScript, err := b.addresses.NewAddress(ctx, account.Name, true)
		if err != nil {
			return nil, err
		}
		changeScriptBytes, err := hex.DecodeString(changeScript.Script)
		if err != nil {
			return nil, err
		}
		var changeBlindingKey []byte
		if account.Confidential {
			_, pubkey, err := b.signer.DeriveBlindingKeyPair(changeScriptBytes)
			if err != nil {
				return nil, err
			}
			changeBlindingKey = pubkey
		}
		outputs = append(outputs, &transactionOutput{
			asset:       asset,
			amount:      leftover,
			script:      changeScriptBytes,
			blindingKey: changeBlindingKey,
		})
	}

	psetBase64, err := wallet.CreateTx()
	if err != nil {
		return nil, err
	}

	txOutputs := make([]*transaction.TxOutput, 0, len(outputs))
	for _, out := range outputs {
		txOut, err := wallet.NewOutput(out.asset, out.amount, out.script)
		if err != nil {
			return nil, err
		}
		txOutputs = append(txOutputs, txOut)
	}
	psetBase64, err = wallet.UpdateTx(wallet.UpdateTxOpts{
		PsetBase64: psetBase64,
		Inputs:     inputs,
		Outputs:    txOutputs,
	})
	if err != nil {
		return nil, err
	}

	if account.Confidential {
		outputBlindingKeys := make([][]byte, 0, len(outputs))
		for _, out := range outputs {
			outputBlindingKeys = append(outputBlindingKeys, out.blindingKey)
		}
		psetBase64, err = wallet.BlindTransactionWithData(
			wallet.BlindTransactionWithDataOpts{
				PsetBase64:         psetBase64,
				InputBlindingData:  inputBlindingData,
				OutputBlindingKeys: outputBlindingKeys,
			},
		)
		if err != nil {
			return nil, err
		}
	}

	feeOutput, err := wallet.NewOutput(feeAsset, feeOutputAmount, nil)
	if err != nil {
		return nil, err
	}
	psetBase64, err = wallet.UpdateTx(wallet.UpdateTxOpts{
		PsetBase64: psetBase64,
		Outputs:    []*transaction.TxOutput{feeOutput},
	})
	if err != nil {
		return nil, err
	}

	return &pendingBuild{
		id:        uuid.NewString(),
		account:   account.Name,
		pset:      psetBase64,
		feeAmount: feeOutputAmount,
		utxos:     selectedUtxos,
		paths:     paths,
		expiresAt: time.Now().Add(defaultBuildTTL),
	}, nil
}

// releaseLocked drops the build and the locks of its outpoints. Callers
// must hold the builder lock.
func (b *builder) releaseLocked(build *pendingBuild) {
	delete(b.builds, build.id)
	for _, utxo := range build.utxos {
		delete(b.locked, utxo.Key().String())
	}
}

func (b *builder) cleanupLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(buildsCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			b.lock.Lock()
			for _, build := range b.builds {
				if now.After(build.expiresAt) {
					log.Debugf("builder: build %s expired", build.id)
					b.releaseLocked(build)
				}
			}
			b.lock.Unlock()
		case <-b.quit:
			return
		}
	}
}

type transactionOutput struct {
	asset       string
	amount      uint64
	script      []byte
	blindingKey []byte
}

func parseTargets(
	targets []TxTarget, confidentialAccount bool,
) ([]parsedTarget, error) {
	if len(targets) == 0 {
		return nil, ErrInvalidTarget
	}

	parsed := make([]parsedTarget, 0, len(targets))
	for _, target := range targets {
		asset, err := hex.DecodeString(target.Asset)
		if err != nil || len(asset) != 32 {
			return nil, ErrInvalidTarget
		}
		if target.Amount == 0 {
			return nil, ErrInvalidTarget
		}

		var script, blindingKey []byte
		switch {
		case target.Address != "":
			script, err = address.ToOutputScript(target.Address)
			if err != nil {
				return nil, ErrInvalidTarget
			}
			if isConfidential, _ := address.IsConfidential(
				target.Address,
			); isConfidential {
				info, err := address.FromConfidential(target.Address)
				if err != nil {
					return nil, ErrInvalidTarget
				}
				blindingKey = info.BlindingKey
			}
		case target.Script != "":
			script, err = hex.DecodeString(target.Script)
			if err != nil || len(script) == 0 {
				return nil, ErrInvalidTarget
			}
			if target.BlindingKey != "" {
				blindingKey, err = hex.DecodeString(target.BlindingKey)
				if err != nil {
					return nil, ErrInvalidTarget
				}
			}
		default:
			return nil, ErrInvalidTarget
		}

		// Blinding a transaction needs the blinding key of every non fee
		// output.
		if confidentialAccount && len(blindingKey) == 0 {
			return nil, ErrInvalidTarget
		}

		parsed = append(parsed, parsedTarget{
			asset:       target.Asset,
			amount:      target.Amount,
			script:      script,
			blindingKey: blindingKey,
		})
	}
	return parsed, nil
}

func normalizeBlinder(blinder []byte) []byte {
	if len(blinder) > 0 {
		return blinder
	}
	return make([]byte, 32)
}
