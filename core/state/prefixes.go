package state

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

var (
	sequencePrefix   = []byte("seq/")
	balancePrefix    = []byte("balance/")
	feeBalancePrefix = []byte("fees/balance/")
	paramPrefix      = []byte("params/")

	vaultKey         = ethcrypto.Keccak256([]byte("custody/vault"))
	feeRecipientsKey = []byte("fees/recipients")
)

func prefixedKey(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return ethcrypto.Keccak256(buf)
}

func sequenceKey(name string) []byte {
	return prefixedKey(sequencePrefix, []byte(name))
}

func balanceKey(addr [20]byte) []byte {
	return prefixedKey(balancePrefix, addr[:])
}

func feeBalanceKey(addr [20]byte) []byte {
	return prefixedKey(feeBalancePrefix, addr[:])
}

func paramKey(name string) []byte {
	return prefixedKey(paramPrefix, []byte(name))
}
