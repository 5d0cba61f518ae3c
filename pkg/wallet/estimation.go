package wallet

const (
	P2PK = iota
	P2PKH
	P2MS
	P2SH_P2WPKH
	P2SH_P2WSH
	P2WPKH
	P2WSH
)

var (
	scriptSigSizeByScriptType = map[int]int{
		P2PK:        140, // len + opcode + sig + opcode + pubkey uncompressed
		P2PKH:       108, // len + opcode + sig + opcode + pubkey
		P2SH_P2WPKH: 23,  // len + p2wpkh script
		P2SH_P2WSH:  35,  // len + p2wsh script
		P2WPKH:      1,   // no scriptsig, still len is serialized
		P2WSH:       1,   // no scriptsig
	}
	scriptPubKeySizeByScriptType = map[int]int{
		P2PK:        67, // len + pubkey uncompressed + opcode
		P2PKH:       26, // len + opcodes (3) + hash(pubkey) + opcodes (2)
		P2SH_P2WPKH: 24, // len + opcodes (2) + hash(script) + opcode
		P2SH_P2WSH:  24, // len + opcodes (2) + hash(script) + opcode
		P2WPKH:      23, // len + opcodes (2) + hash(script)
		P2WSH:       35, // len + opcodes (2) + hash(script)
	}
)

// EstimateTxSize makes an estimation of the virtual size of a confidential
// transaction given the types of its inputs and outputs according to the
// Bitcoin standard scripts (P2PK, P2PKH, P2MS, P2SH(P2WPKH), P2SH(P2WSH),
// P2WPKH, P2WSH). The estimation accounts for the blinded proofs of every
// output and for the explicit fee output.
func EstimateTxSize(inScriptTypes, outScriptTypes []int) int {
	baseSize := calcTxSize(false, inScriptTypes, outScriptTypes)
	totalSize := calcTxSize(true, inScriptTypes, outScriptTypes)

	weight := baseSize*3 + totalSize
	vsize := (weight + 3) / 4

	return vsize
}

// EstimateFee returns the fee amount in satoshis for a transaction made of
// the given number of P2WPKH inputs and confidential P2WPKH outputs (plus
// the fee output), at the given rate expressed in millisatoshis per virtual
// byte.
func EstimateFee(numInputs, numOutputs, millisatsPerByte int) uint64 {
	inScriptTypes := make([]int, 0, numInputs)
	for i := 0; i < numInputs; i++ {
		inScriptTypes = append(inScriptTypes, P2WPKH)
	}
	outScriptTypes := make([]int, 0, numOutputs)
	for i := 0; i < numOutputs; i++ {
		outScriptTypes = append(outScriptTypes, P2WPKH)
	}

	txSize := EstimateTxSize(inScriptTypes, outScriptTypes)

	satsPerByte := float64(millisatsPerByte) / 1000
	return uint64(float64(txSize) * satsPerByte)
}

func calcTxSize(withWitness bool, inScriptTypes, outScriptTypes []int) int {
	txSize := calcTxBaseSize(inScriptTypes, outScriptTypes)
	if withWitness {
		txSize += calcTxWitnessSize(inScriptTypes, outScriptTypes)
	}
	return txSize
}

func calcTxBaseSize(inScriptTypes, outScriptTypes []int) int {
	// hash + index + sequence
	inBaseSize := 40
	insSize := 0
	for _, scriptType := range inScriptTypes {
		insSize += inBaseSize + scriptSigSizeByScriptType[scriptType]
	}

	// asset + value + nonce commitments
	outBaseSize := 33 + 33 + 33
	outsSize := 0
	for _, scriptType := range outScriptTypes {
		outsSize += outBaseSize + scriptPubKeySizeByScriptType[scriptType]
	}
	// size of unconf fee out
	// asset + unconf value + empty script + empty nonce
	outsSize += 33 + 9 + 1 + 1

	return 9 +
		varIntSerializeSize(uint64(len(inScriptTypes))) +
		varIntSerializeSize(uint64(len(outScriptTypes)+1)) +
		insSize + outsSize
}

func calcTxWitnessSize(inScriptTypes, outScriptTypes []int) int {
	insSize := 0
	for _, scriptType := range inScriptTypes {
		if scriptType == P2SH_P2WPKH || scriptType == P2WPKH {
			// len + witness[sig,pubkey] + no issuance proof + no token proof + no pegin
			insSize += 1 + 107 + 1 + 1 + 1
		}
	}

	numOutputs := len(outScriptTypes)
	// size(range proof) + proof + size(surjection proof) + proof
	outsSize := (3 + 4174 + 1 + 131) * numOutputs
	// size of proofs for unconf fee out
	outsSize += 1 + 1

	return insSize + outsSize
}
