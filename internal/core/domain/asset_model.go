package domain

// AssetInfo is the display metadata of an asset as published by an asset
// registry. Precision is the number of decimal digits of the asset unit.
// Never used for consensus or selection logic.
type AssetInfo struct {
	AssetHash string
	Name      string
	Ticker    string
	Precision uint
}
