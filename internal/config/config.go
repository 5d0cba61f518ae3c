package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"
	"github.com/vulpemventures/go-elements/network"

	"github.com/tide-network/tide-daemon/pkg/wallet"
)

const (
	// DatadirKey is the local data directory where the daemon stores its
	// state.
	DatadirKey = "DATADIR"
	// LogLevelKey is the logging verbosity. For reference on the values
	// https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the Liquid network to run on, one of liquid, testnet or
	// regtest.
	NetworkKey = "NETWORK"
	// ElectrumEndpointsKey is the list of Electrum servers to connect to, as
	// scheme://host:port with scheme one of tcp, ssl, ws, wss. The first
	// healthy one is elected, the others serve as fallback and as
	// corroboration during rescans.
	ElectrumEndpointsKey = "ELECTRUM_ENDPOINTS"
	// ProxyKey is the host:port of an optional SOCKS5 proxy the tcp and ssl
	// endpoints are dialed through.
	ProxyKey = "PROXY"
	// AllowInsecureTLSKey skips the certificate check on ssl and wss
	// endpoints. Meant for self-hosted servers on regtest.
	AllowInsecureTLSKey = "ALLOW_INSECURE_TLS"
	// ElectrumRequestRateKey paces the requests sent to an endpoint, in
	// requests per second. Zero applies the client default.
	ElectrumRequestRateKey = "ELECTRUM_REQUEST_RATE"
	// MnemonicKey is the BIP39 mnemonic of the wallet.
	MnemonicKey = "MNEMONIC"
	// MnemonicFileKey is the path of a file containing the mnemonic, read
	// when MNEMONIC is not set. Keeps the secret out of the environment.
	MnemonicFileKey = "MNEMONIC_FILE"
	// MnemonicPassphraseKey is the passphrase unsealing the mnemonic when it
	// is stored encrypted. The ciphertext is generated with `tide encrypt`.
	MnemonicPassphraseKey = "MNEMONIC_PASSPHRASE"
	// GapLimitKey is the number of consecutive unused addresses that ends
	// an account scan.
	GapLimitKey = "GAP_LIMIT"
	// ConfirmationThresholdKey is the minimum number of confirmations for a
	// utxo to count as confirmed in balances and coin selection.
	ConfirmationThresholdKey = "CONFIRMATION_THRESHOLD"
	// RegistryURLKey is the base URL of the asset registry used to resolve
	// asset metadata. Empty disables resolution, balances are then returned
	// without display info.
	RegistryURLKey = "REGISTRY_URL"
	// WSListenAddrKey is the host:port the WebSocket API listens on.
	WSListenAddrKey = "WS_LISTEN_ADDR"
	// StatsIntervalKey is the interval in seconds between periodic runtime
	// stats reports. Zero disables them.
	StatsIntervalKey = "STATS_INTERVAL"
	// DBTypeKey switches the repository implementation between those
	// supported.
	DBTypeKey = "DB_TYPE"

	// DbLocation is the subdirectory of the datadir holding the database.
	DbLocation = "db"

	DBBadger   = "badger"
	DBInMemory = "inmemory"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("tide-daemon", false)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("TIDE")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(NetworkKey, network.Liquid.Name)
	vip.SetDefault(ElectrumEndpointsKey, []string{"ssl://blockstream.info:995"})
	vip.SetDefault(AllowInsecureTLSKey, false)
	vip.SetDefault(ElectrumRequestRateKey, 0)
	vip.SetDefault(GapLimitKey, 20)
	vip.SetDefault(ConfirmationThresholdKey, 1)
	vip.SetDefault(RegistryURLKey, "https://assets.blockstream.info")
	vip.SetDefault(WSListenAddrKey, "localhost:9945")
	vip.SetDefault(StatsIntervalKey, 600)
	vip.SetDefault(DBTypeKey, DBBadger)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetStringSlice(key string) []string {
	return vip.GetStringSlice(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetNetwork returns the network parameters selected by the NETWORK key.
func GetNetwork() *network.Network {
	switch GetString(NetworkKey) {
	case network.Regtest.Name:
		return &network.Regtest
	case network.Testnet.Name:
		return &network.Testnet
	default:
		return &network.Liquid
	}
}

// GetMnemonic returns the wallet mnemonic, either inline from MNEMONIC or
// read from the file pointed by MNEMONIC_FILE. When MNEMONIC_PASSPHRASE is
// set the value is treated as a ciphertext and decrypted with it.
func GetMnemonic() (string, error) {
	mnemonic := GetString(MnemonicKey)
	if mnemonic == "" {
		buf, err := os.ReadFile(GetString(MnemonicFileKey))
		if err != nil {
			return "", fmt.Errorf("failed to read mnemonic file: %s", err)
		}
		mnemonic = strings.TrimSpace(string(buf))
	}

	if passphrase := GetString(MnemonicPassphraseKey); passphrase != "" {
		plainText, err := wallet.Decrypt(wallet.DecryptOpts{
			CipherText: mnemonic,
			Passphrase: passphrase,
		})
		if err != nil {
			return "", fmt.Errorf("failed to decrypt mnemonic: %s", err)
		}
		mnemonic = plainText
	}

	return mnemonic, nil
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if err := validateNetwork(GetString(NetworkKey)); err != nil {
		return err
	}

	endpoints := GetStringSlice(ElectrumEndpointsKey)
	if len(endpoints) == 0 {
		return fmt.Errorf("missing electrum endpoints")
	}
	for _, endpoint := range endpoints {
		if err := validateEndpoint(endpoint); err != nil {
			return err
		}
	}

	if GetString(MnemonicKey) == "" && GetString(MnemonicFileKey) == "" {
		return fmt.Errorf(
			"missing mnemonic, provide it with %s or %s",
			MnemonicKey, MnemonicFileKey,
		)
	}

	if GetInt(GapLimitKey) <= 0 {
		return fmt.Errorf("%s must be greater than 0", GapLimitKey)
	}
	if GetInt(ConfirmationThresholdKey) < 0 {
		return fmt.Errorf("%s must not be negative", ConfirmationThresholdKey)
	}

	if dbType := GetString(DBTypeKey); dbType != DBBadger && dbType != DBInMemory {
		return fmt.Errorf(
			"%s must be either '%s' or '%s'", DBTypeKey, DBBadger, DBInMemory,
		)
	}

	return nil
}

func validateNetwork(name string) error {
	switch name {
	case network.Liquid.Name, network.Testnet.Name, network.Regtest.Name:
		return nil
	default:
		return fmt.Errorf(
			"network must be one of '%s', '%s' or '%s'",
			network.Liquid.Name, network.Testnet.Name, network.Regtest.Name,
		)
	}
}

func validateEndpoint(endpoint string) error {
	scheme, addr, found := cutScheme(endpoint)
	if !found || addr == "" {
		return fmt.Errorf(
			"invalid electrum endpoint %s, expected scheme://host:port",
			endpoint,
		)
	}
	switch scheme {
	case "tcp", "ssl", "ws", "wss":
		return nil
	default:
		return fmt.Errorf(
			"invalid electrum endpoint %s, scheme must be one of tcp, ssl, "+
				"ws, wss", endpoint,
		)
	}
}

func cutScheme(endpoint string) (string, string, bool) {
	i := strings.Index(endpoint, "://")
	if i < 0 {
		return "", "", false
	}
	return endpoint[:i], endpoint[i+len("://"):], true
}

func initDatadir() error {
	if GetString(DBTypeKey) != DBBadger {
		return nil
	}
	return makeDirectoryIfNotExists(filepath.Join(GetDatadir(), DbLocation))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
