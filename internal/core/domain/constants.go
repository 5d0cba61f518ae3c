package domain

const (
	// ExternalChain identifies scripts derived on the receiving branch of an
	// account.
	ExternalChain = 0
	// InternalChain identifies scripts derived on the change branch of an
	// account.
	InternalChain = 1

	// MinMilliSatPerByte is the lowest accepted fee rate for built
	// transactions.
	MinMilliSatPerByte = 100

	// DustAmount is the threshold in satoshis under which change outputs are
	// silently added to the fees.
	DustAmount = 450
)
