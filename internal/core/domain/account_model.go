package domain

// Script is a derived output script of an account, tracked from the moment
// of its derivation. Scripts are immutable, only their ownership metadata is
// stored, the chain state observed for them lives in the account Ledger.
type Script struct {
	Account        string
	Chain          int
	Index          uint32
	Script         string
	ScriptHash     string
	Address        string
	BlindingKey    []byte
	DerivationPath string
}

// Account is a BIP32 account of the wallet, identified by its name. It
// tracks the scripts derived on its external and internal chains along with
// the frontier index of each chain, ie. the index of the next script to
// derive.
type Account struct {
	Name              string
	Index             uint32
	XPub              string
	Confidential      bool
	NextExternalIndex uint32
	NextInternalIndex uint32
	ScriptsByHash     map[string]Script
}

// NewAccount returns an empty account with the given identity.
func NewAccount(name string, index uint32, xpub string, confidential bool) (*Account, error) {
	if name == "" {
		return nil, ErrNullAccountName
	}
	if xpub == "" {
		return nil, ErrNullAccountXPub
	}
	return &Account{
		Name:          name,
		Index:         index,
		XPub:          xpub,
		Confidential:  confidential,
		ScriptsByHash: map[string]Script{},
	}, nil
}
