package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = TMExchangeSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// TMExchangeSemVer is the current version of tm-exchange.
	// It's the Semantic Version of the software.
	TMExchangeSemVer = "0.1.0"

	// EthProtocolVersion is the eth wire protocol version whose request and
	// response messages the exchange speaks. Request ids were introduced
	// with eth/66.
	EthProtocolVersion = 66
)
