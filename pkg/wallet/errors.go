package wallet

import "errors"

var (
	// ErrNullNetwork ...
	ErrNullNetwork = errors.New("network params are null")
	// ErrNullMnemonic ...
	ErrNullMnemonic = errors.New("mnemonic is null")
	// ErrNullSigningMasterKey ...
	ErrNullSigningMasterKey = errors.New("signing master key is null")
	// ErrNullBlindingMasterKey ...
	ErrNullBlindingMasterKey = errors.New("blinding master key is null")
	// ErrNullDerivationPath ...
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrNullOutputScript ...
	ErrNullOutputScript = errors.New("output script must not be null")
	// ErrNullPset ...
	ErrNullPset = errors.New("pset base64 must not be null")
	// ErrNullInputWitnessUtxo ...
	ErrNullInputWitnessUtxo = errors.New("input witness utxo must not be null")
	// ErrNullSigHash ...
	ErrNullSigHash = errors.New("hash to sign must not be null")
	// ErrNullPlainText ...
	ErrNullPlainText = errors.New("plaintext must not be null")
	// ErrNullCipherText ...
	ErrNullCipherText = errors.New("ciphertext must not be null")
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")

	// ErrInvalidMnemonic ...
	ErrInvalidMnemonic = errors.New("mnemonic is invalid")
	// ErrInvalidEntropySize ...
	ErrInvalidEntropySize = errors.New(
		"entropy size must be a multiple of 32 in the range [128,256]",
	)
	// ErrInvalidDerivationPath ...
	ErrInvalidDerivationPath = errors.New("invalid derivation path")
	// ErrInvalidDerivationPathLength ...
	ErrInvalidDerivationPathLength = errors.New(
		"derivation path must be a relative path in the form \"account'/branch/index\"",
	)
	// ErrInvalidDerivationPathAccount ...
	ErrInvalidDerivationPathAccount = errors.New(
		"derivation path's account (first elem) must be hardened (suffix \"'\")",
	)
	// ErrOutOfRangeDerivationPathAccount ...
	ErrOutOfRangeDerivationPathAccount = errors.New(
		"account index must be in hardened range [0, 2^31-1]",
	)
	// ErrMalformedDerivationPath ...
	ErrMalformedDerivationPath = errors.New(
		"path must not start or end with a '/' and " +
			"can optionally start with 'm/' for absolute paths",
	)
	// ErrInvalidSignatures ...
	ErrInvalidSignatures = errors.New("transaction contains invalid signatures")
	// ErrInvalidAttempts ...
	ErrInvalidAttempts = errors.New(
		"attempts must be in range [1, MaxBlindingAttempts]",
	)
	// ErrInvalidOutputBlindingKeysLen ...
	ErrInvalidOutputBlindingKeysLen = errors.New(
		"number of output blinding keys must match the number of pset outputs",
	)
	// ErrInvalidInputTxID ...
	ErrInvalidInputTxID = errors.New(
		"input txid must be a 32 byte transaction hash in hex format",
	)
	// ErrInvalidInputBlindingData ...
	ErrInvalidInputBlindingData = errors.New(
		"input blinding data must contain a 32 byte asset and 32 byte blinders",
	)
	// ErrInvalidInputIndex ...
	ErrInvalidInputIndex = errors.New("input index is out of range")
	// ErrInvalidCipherText ...
	ErrInvalidCipherText = errors.New(
		"ciphertext is malformed or sealed under a different passphrase",
	)

	// ErrNotConfidentialWallet ...
	ErrNotConfidentialWallet = errors.New(
		"wallet has no blinding master key, confidential operations are not available",
	)
	// ErrReachedMaxBlindingAttempts ...
	ErrReachedMaxBlindingAttempts = errors.New(
		"max number of blinding attempts reached",
	)
)
