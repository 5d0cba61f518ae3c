package domain

import "errors"

var (
	// ErrNullAccountName ...
	ErrNullAccountName = errors.New("account name must not be null")
	// ErrNullAccountXPub ...
	ErrNullAccountXPub = errors.New("account xpub must not be null")
	// ErrAccountNotFound ...
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountAlreadyExists ...
	ErrAccountAlreadyExists = errors.New("account already exists")
	// ErrInvalidChain is thrown when deriving or indexing a script on a chain
	// other than the external or internal one.
	ErrInvalidChain = errors.New("chain must be either external (0) or internal (1)")
	// ErrScriptAlreadyDerived ...
	ErrScriptAlreadyDerived = errors.New("script is already derived for the account")

	// ErrLedgerNotFound ...
	ErrLedgerNotFound = errors.New("ledger not found")
	// ErrNullTxID ...
	ErrNullTxID = errors.New("txid must not be null")
	// ErrTxRecordNotFound ...
	ErrTxRecordNotFound = errors.New("transaction record not found")
	// ErrUtxoNotFound ...
	ErrUtxoNotFound = errors.New("utxo not found")

	// ErrAssetNotFound ...
	ErrAssetNotFound = errors.New("asset not found")
)
