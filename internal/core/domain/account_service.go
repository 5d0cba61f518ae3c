package domain

import "sort"

// NextIndex returns the frontier index of the given chain, ie. the index of
// the next script to derive on it.
func (a *Account) NextIndex(chain int) (uint32, error) {
	switch chain {
	case ExternalChain:
		return a.NextExternalIndex, nil
	case InternalChain:
		return a.NextInternalIndex, nil
	default:
		return 0, ErrInvalidChain
	}
}

// AddScript tracks a newly derived script and moves the chain frontier right
// past its index if needed. Indexes below the frontier can be re-added
// idempotently, re-adding a script hash already tracked with a different
// derivation is an error.
func (a *Account) AddScript(script Script) error {
	if script.Chain != ExternalChain && script.Chain != InternalChain {
		return ErrInvalidChain
	}
	if a.ScriptsByHash == nil {
		a.ScriptsByHash = map[string]Script{}
	}
	if tracked, ok := a.ScriptsByHash[script.ScriptHash]; ok {
		if tracked.Chain != script.Chain || tracked.Index != script.Index {
			return ErrScriptAlreadyDerived
		}
		return nil
	}
	a.ScriptsByHash[script.ScriptHash] = script

	switch script.Chain {
	case ExternalChain:
		if script.Index >= a.NextExternalIndex {
			a.NextExternalIndex = script.Index + 1
		}
	case InternalChain:
		if script.Index >= a.NextInternalIndex {
			a.NextInternalIndex = script.Index + 1
		}
	}
	return nil
}

// ScriptByHash returns the tracked script with the given Electrum script
// hash.
func (a *Account) ScriptByHash(scriptHash string) (Script, bool) {
	script, ok := a.ScriptsByHash[scriptHash]
	return script, ok
}

// ScriptsForChain returns the tracked scripts of the given chain sorted by
// derivation index.
func (a *Account) ScriptsForChain(chain int) []Script {
	scripts := make([]Script, 0, len(a.ScriptsByHash))
	for _, script := range a.ScriptsByHash {
		if script.Chain == chain {
			scripts = append(scripts, script)
		}
	}
	sort.Slice(scripts, func(i, j int) bool {
		return scripts[i].Index < scripts[j].Index
	})
	return scripts
}

// AllScripts returns every tracked script of the account, external chain
// first, both chains sorted by derivation index.
func (a *Account) AllScripts() []Script {
	scripts := a.ScriptsForChain(ExternalChain)
	return append(scripts, a.ScriptsForChain(InternalChain)...)
}

// IsConfidential returns whether the account derives confidential addresses
// and therefore owns blinding keys for its scripts.
func (a *Account) IsConfidential() bool {
	return a.Confidential
}
