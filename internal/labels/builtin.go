package labels

// Builtin returns the built-in fallback labels for a chain family:
// "ethereum", "solana" or "bitcoin". Unknown names yield an empty set.
func Builtin(family string) File {
	switch family {
	case "ethereum":
		return File{Exchange: copyGroups(ethereumExchanges)}
	case "solana":
		return File{Exchange: copyGroups(solanaExchanges), Organization: copyGroups(solanaOrganizations)}
	case "bitcoin":
		return File{Exchange: copyGroups(bitcoinExchanges)}
	default:
		return File{}
	}
}

func copyGroups(in Groups) Groups {
	out := make(Groups, len(in))
	for label, addrs := range in {
		out[label] = append([]string(nil), addrs...)
	}
	return out
}

var ethereumExchanges = Groups{
	"Binance": {
		"0x28c6c06298d514db089934071355e5743bf21d60",
		"0x564286362092d8e7936f0549571a803b203aaced",
		"0x267be1c1d684f78cb4f6a176c4911b741e4ffdc0",
		"0xf977814e90da44bfa03b6295a0616a897441acec",
	},
	"Bitfinex": {"0x742d35cc6634c0532925a3b844bc454e4438f44e"},
	"Kraken":   {"0x53d284357ec70ce289d6d64134dfac8e511c8a3d"},
	"OKX":      {"0x66f820a414680b5bcda5eeca5dea238543f42054"},
	"Huobi":    {"0x21a31ee1afc51d94c2efccaa2092ad1028285549"},
	"Coinbase": {
		"0xFCD159D0FeF5B1003E10D91A5b79d52BbB8cD05d",
		"0xb5d85CBf7cB3EE0D56b3bB207D5Fc4B82f43F511",
	},
}

var solanaExchanges = Groups{
	"Binance": {
		"8L8pDf3jutdpdr4m3np68CL9ZroLActrqwxi6s9Ah5xU",
		"5tzFkiKscXHK5ZXCGbXZxdw7gTjjD1mBwuoFbhUvuAi9",
		"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
	},
	"OKX":      {"is6MTRHEgyFLNTfYcuV4QBWLjrZBfmhVNYR6ccgr8KV"},
	"Coinbase": {"FpwQQhQQoEaVu3WU2qZMfF1hx48YyfwsLoRgXG83E99Q", "GJRs4FwHtemZ5ZE9x3FNvJ8TMwitKTh21yxdRPqn7npE"},
	"Gate":     {"u6PJ8DtQuPFnfmwHbGFULQ4u4EgjDiyYKjVEsynXq2w"},
	"Kraken":   {"FWznbcNXWQuHTawe9RxvQ2LdCENssh12dsznf4RiouN5"},
	"Bybit":    {"AC5RDfQFmDS1deWZos921JfqscXdByf6BKHAbETSYnh7"},
}

var solanaOrganizations = Groups{
	"Wintermute":        {"3ADzk5YDP9sgorvPSs9YPxigJiSqhgddpwHwwPwmEFib"},
	"FireblocksCustody": {"GJFXMTxWdT4uWPXon1d9rJmx4U6NWbeaneh8uhVArVfP"},
}

var bitcoinExchanges = Groups{
	"Binance": {"1NDyJtNTjmwk5xPNhjgAMu4HDHigtobu1s"},
	"Coinbase": {
		"3D2oetdNuZUqQHPJmcMDDHYoqkyNVsFk9r",
		"3Cbq7aT1tY8kMxWLbitaG7yT6bPbKChq64",
		"147sPaNaqeyQp8GS2oAUajhb9d4PZ9xAv9",
	},
	"Crypto.com": {
		"bc1qr4dl5wa7kl8yu792dceg9z5knl2gkn220lk7a9",
		"32hK628jM4j1xLRQzJuvLsBhmBxKeVSdgN",
		"bc1q7cyrfmck2ffu2ud3rn5l5a8yv6f0chkp0zpemf",
	},
}
