package wallet

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/pset"
	"github.com/vulpemventures/go-elements/transaction"
)

const testTxID = "3bf5b21f9b5785de089be6dc4963058b4734bf86a9434c9910ad739dbf742eb0"

func TestCreateTx(t *testing.T) {
	psetBase64, err := CreateTx()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, true, len(psetBase64) > 0)

	ptx, err := pset.NewPsetFromBase64(psetBase64)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, len(ptx.Inputs))
	assert.Equal(t, 0, len(ptx.Outputs))
}

func TestUpdateTx(t *testing.T) {
	wallet, err := newTestWallet()
	if err != nil {
		t.Fatal(err)
	}
	_, script, err := wallet.DeriveAddress(DeriveAddressOpts{
		DerivationPath: "0'/0/0",
		Network:        &network.Regtest,
	})
	if err != nil {
		t.Fatal(err)
	}

	psetBase64, err := CreateTx()
	if err != nil {
		t.Fatal(err)
	}

	_, outScript, err := wallet.DeriveAddress(DeriveAddressOpts{
		DerivationPath: "0'/0/1",
		Network:        &network.Regtest,
	})
	if err != nil {
		t.Fatal(err)
	}
	out, err := NewOutput(network.Regtest.AssetID, 60000000, outScript)
	if err != nil {
		t.Fatal(err)
	}

	updatedPsetBase64, err := UpdateTx(UpdateTxOpts{
		PsetBase64: psetBase64,
		Inputs: []Input{
			{
				TxID:   testTxID,
				VOut:   1,
				Script: script,
				Asset:  network.Regtest.AssetID,
				Value:  100000000,
			},
		},
		Outputs: []*transaction.TxOutput{out},
	})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, true, len(updatedPsetBase64) > 0)

	ptx, err := pset.NewPsetFromBase64(updatedPsetBase64)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, len(ptx.Inputs))
	assert.Equal(t, 1, len(ptx.Outputs))
	assert.NotNil(t, ptx.Inputs[0].WitnessUtxo)
	assert.Equal(t, script, ptx.Inputs[0].WitnessUtxo.Script)
}

func TestFailingUpdateTx(t *testing.T) {
	wallet, err := newTestWallet()
	if err != nil {
		t.Fatal(err)
	}
	_, script, err := wallet.DeriveAddress(DeriveAddressOpts{
		DerivationPath: "0'/0/0",
		Network:        &network.Regtest,
	})
	if err != nil {
		t.Fatal(err)
	}
	psetBase64, err := CreateTx()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		opts UpdateTxOpts
		err  error
	}{
		{
			opts: UpdateTxOpts{
				PsetBase64: "",
			},
			err: ErrNullPset,
		},
		{
			opts: UpdateTxOpts{
				PsetBase64: psetBase64,
				Inputs: []Input{
					{TxID: "notahash", VOut: 0, Script: script},
				},
			},
			err: ErrInvalidInputTxID,
		},
		{
			opts: UpdateTxOpts{
				PsetBase64: psetBase64,
				Inputs: []Input{
					{TxID: testTxID, VOut: 0},
				},
			},
			err: ErrNullOutputScript,
		},
	}
	for _, tt := range tests {
		_, err := UpdateTx(tt.opts)
		assert.Equal(t, tt.err, err)
	}
}

// Full flow of the wallet primitives: craft an empty pset, add an owned
// explicit utxo as input together with the confidential outputs, blind, add
// the explicit fee output, sign and finalize.
func TestBlindSignAndFinalizeTx(t *testing.T) {
	wallet, err := newTestWallet()
	if err != nil {
		t.Fatal(err)
	}

	_, inScript, err := wallet.DeriveAddress(DeriveAddressOpts{
		DerivationPath: "0'/0/0",
		Network:        &network.Regtest,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, outScript, err := wallet.DeriveAddress(DeriveAddressOpts{
		DerivationPath: "0'/0/1",
		Network:        &network.Regtest,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, changeScript, err := wallet.DeriveAddress(DeriveAddressOpts{
		DerivationPath: "0'/1/0",
		Network:        &network.Regtest,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := NewOutput(network.Regtest.AssetID, 60000000, outScript)
	if err != nil {
		t.Fatal(err)
	}
	changeOut, err := NewOutput(network.Regtest.AssetID, 39999500, changeScript)
	if err != nil {
		t.Fatal(err)
	}

	psetBase64, err := CreateTx()
	if err != nil {
		t.Fatal(err)
	}
	updatedPsetBase64, err := UpdateTx(UpdateTxOpts{
		PsetBase64: psetBase64,
		Inputs: []Input{
			{
				TxID:   testTxID,
				VOut:   1,
				Script: inScript,
				Asset:  network.Regtest.AssetID,
				Value:  100000000,
			},
		},
		Outputs: []*transaction.TxOutput{out, changeOut},
	})
	if err != nil {
		t.Fatal(err)
	}

	// explicit input, zero blinders
	_, outBlindingKey, err := wallet.DeriveBlindingKeyPair(
		DeriveBlindingKeyPairOpts{Script: outScript},
	)
	if err != nil {
		t.Fatal(err)
	}
	_, changeBlindingKey, err := wallet.DeriveBlindingKeyPair(
		DeriveBlindingKeyPairOpts{Script: changeScript},
	)
	if err != nil {
		t.Fatal(err)
	}
	blindedPsetBase64, err := BlindTransactionWithData(
		BlindTransactionWithDataOpts{
			PsetBase64: updatedPsetBase64,
			InputBlindingData: map[int]BlindingData{
				0: {
					Asset:        network.Regtest.AssetID,
					Value:        100000000,
					AssetBlinder: make([]byte, 32),
					ValueBlinder: make([]byte, 32),
				},
			},
			OutputBlindingKeys: [][]byte{
				outBlindingKey.SerializeCompressed(),
				changeBlindingKey.SerializeCompressed(),
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	feeOut, err := NewOutput(network.Regtest.AssetID, 500, []byte{})
	if err != nil {
		t.Fatal(err)
	}
	completePsetBase64, err := UpdateTx(UpdateTxOpts{
		PsetBase64: blindedPsetBase64,
		Outputs:    []*transaction.TxOutput{feeOut},
	})
	if err != nil {
		t.Fatal(err)
	}

	signedPsetBase64, err := wallet.SignInput(SignInputOpts{
		PsetBase64:     completePsetBase64,
		InIndex:        0,
		DerivationPath: "0'/0/0",
	})
	if err != nil {
		t.Fatal(err)
	}

	txHex, txid, err := FinalizeAndExtractTransaction(
		FinalizeAndExtractTransactionOpts{PsetBase64: signedPsetBase64},
	)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, true, len(txHex) > 0)
	assert.Equal(t, 64, len(txid))

	finalTx, err := transaction.NewTxFromHex(txHex)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, len(finalTx.Inputs))
	assert.Equal(t, 3, len(finalTx.Outputs))
}

func TestFailingBlindTransactionWithData(t *testing.T) {
	wallet, err := newTestWallet()
	if err != nil {
		t.Fatal(err)
	}
	_, script, err := wallet.DeriveAddress(DeriveAddressOpts{
		DerivationPath: "0'/0/0",
		Network:        &network.Regtest,
	})
	if err != nil {
		t.Fatal(err)
	}
	psetBase64, err := CreateTx()
	if err != nil {
		t.Fatal(err)
	}
	out, err := NewOutput(network.Regtest.AssetID, 99999000, script)
	if err != nil {
		t.Fatal(err)
	}
	updatedPsetBase64, err := UpdateTx(UpdateTxOpts{
		PsetBase64: psetBase64,
		Inputs: []Input{
			{
				TxID:   testTxID,
				VOut:   0,
				Script: script,
				Asset:  network.Regtest.AssetID,
				Value:  100000000,
			},
		},
		Outputs: []*transaction.TxOutput{out},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, blindingKey, err := wallet.DeriveBlindingKeyPair(
		DeriveBlindingKeyPairOpts{Script: script},
	)
	if err != nil {
		t.Fatal(err)
	}
	validBlindingData := BlindingData{
		Asset:        network.Regtest.AssetID,
		Value:        100000000,
		AssetBlinder: make([]byte, 32),
		ValueBlinder: make([]byte, 32),
	}

	tests := []struct {
		opts BlindTransactionWithDataOpts
		err  error
	}{
		{
			opts: BlindTransactionWithDataOpts{
				PsetBase64: "",
			},
			err: ErrNullPset,
		},
		{
			opts: BlindTransactionWithDataOpts{
				PsetBase64:         updatedPsetBase64,
				InputBlindingData:  nil,
				OutputBlindingKeys: [][]byte{blindingKey.SerializeCompressed()},
			},
			err: ErrInvalidInputBlindingData,
		},
		{
			opts: BlindTransactionWithDataOpts{
				PsetBase64: updatedPsetBase64,
				InputBlindingData: map[int]BlindingData{
					0: {
						Asset:        "invalidhex",
						Value:        100000000,
						AssetBlinder: make([]byte, 32),
						ValueBlinder: make([]byte, 32),
					},
				},
				OutputBlindingKeys: [][]byte{blindingKey.SerializeCompressed()},
			},
			err: ErrInvalidInputBlindingData,
		},
		{
			opts: BlindTransactionWithDataOpts{
				PsetBase64: updatedPsetBase64,
				InputBlindingData: map[int]BlindingData{
					0: validBlindingData,
				},
				OutputBlindingKeys: [][]byte{},
			},
			err: ErrInvalidOutputBlindingKeysLen,
		},
		{
			opts: BlindTransactionWithDataOpts{
				PsetBase64: updatedPsetBase64,
				InputBlindingData: map[int]BlindingData{
					0: validBlindingData,
				},
				OutputBlindingKeys: [][]byte{blindingKey.SerializeCompressed()},
				Attempts:           MaxBlindingAttempts + 1,
			},
			err: ErrInvalidAttempts,
		},
	}
	for _, tt := range tests {
		_, err := BlindTransactionWithData(tt.opts)
		assert.Equal(t, tt.err, err)
	}
}

func TestInputIsConfidential(t *testing.T) {
	assetCommitment := "0a" + hex.EncodeToString(make([]byte, 32))
	valueCommitment := "09" + hex.EncodeToString(make([]byte, 32))
	tests := []struct {
		in           Input
		confidential bool
	}{
		{
			in: Input{
				TxID:  testTxID,
				Asset: network.Regtest.AssetID,
				Value: 42,
			},
			confidential: false,
		},
		{
			in: Input{
				TxID:            testTxID,
				AssetCommitment: assetCommitment,
				ValueCommitment: valueCommitment,
			},
			confidential: true,
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.confidential, tt.in.IsConfidential())
	}
}
