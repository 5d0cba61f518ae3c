// Package bufferutil converts between the wire format of Elements
// transactions and the display format used everywhere else in the daemon,
// ie. hex strings in display (reversed) byte order for hashes and assets,
// uint64 satoshi amounts for explicit values.
package bufferutil

import (
	"encoding/hex"

	"github.com/vulpemventures/go-elements/elementsutil"
)

// AssetHashFromBytes returns the display order hex of an explicit asset
// prevout field, dropping the leading unconfidential prefix byte.
func AssetHashFromBytes(buffer []byte) string {
	return hex.EncodeToString(elementsutil.ReverseBytes(buffer[1:]))
}

// AssetHashToBytes returns the wire serialization of an explicit asset given
// in display order hex.
func AssetHashToBytes(str string) ([]byte, error) {
	buffer, err := hex.DecodeString(str)
	if err != nil {
		return nil, err
	}
	buffer = elementsutil.ReverseBytes(buffer)
	buffer = append([]byte{0x01}, buffer...)
	return buffer, nil
}

// ValueFromBytes returns the satoshi amount of an explicit value prevout
// field.
func ValueFromBytes(buffer []byte) uint64 {
	value, _ := elementsutil.ValueFromBytes(buffer)
	return value
}

// ValueToBytes returns the wire serialization of an explicit value.
func ValueToBytes(val uint64) ([]byte, error) {
	return elementsutil.ValueToBytes(val)
}

// TxIDFromBytes returns the display order hex of a transaction hash.
func TxIDFromBytes(buffer []byte) string {
	return hex.EncodeToString(elementsutil.ReverseBytes(buffer))
}

// TxIDToBytes returns the internal order hash of a transaction id given in
// display order hex.
func TxIDToBytes(str string) ([]byte, error) {
	buffer, err := hex.DecodeString(str)
	if err != nil {
		return nil, err
	}
	return elementsutil.ReverseBytes(buffer), nil
}

// CommitmentFromBytes returns the hex of an asset or value commitment.
// Commitments are not reversed.
func CommitmentFromBytes(buffer []byte) string {
	return hex.EncodeToString(buffer)
}

// CommitmentToBytes returns the raw bytes of an asset or value commitment
// given in hex format.
func CommitmentToBytes(str string) ([]byte, error) {
	return hex.DecodeString(str)
}
