package hyperliquid

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vmihailenco/msgpack/v5"
)

// Signed actions use the "phantom agent" scheme: the msgpack action hash
// becomes the connectionId of a synthetic Agent struct, which is then
// signed as EIP-712 typed data under a fixed Exchange domain.

type signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

// actionHash is keccak256 of the canonical msgpack encoding of the action
// followed by the big-endian nonce and a vault marker byte.
func actionHash(action any, nonce uint64) ([32]byte, error) {
	packed, err := msgpack.Marshal(action)
	if err != nil {
		return [32]byte{}, fmt.Errorf("msgpack action: %w", err)
	}
	data := make([]byte, 0, len(packed)+9)
	data = append(data, packed...)
	data = binary.BigEndian.AppendUint64(data, nonce)
	data = append(data, 0x00) // no vault address
	var out [32]byte
	copy(out[:], crypto.Keccak256(data))
	return out, nil
}

var (
	agentTypeHash  = crypto.Keccak256Hash([]byte("Agent(string source,bytes32 connectionId)"))
	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	domainName     = crypto.Keccak256Hash([]byte("Exchange"))
	domainVersion  = crypto.Keccak256Hash([]byte("1"))
	domainChainID  = big.NewInt(1337)
)

func domainSeparator() [32]byte {
	var buf []byte
	buf = append(buf, domainTypeHash.Bytes()...)
	buf = append(buf, domainName.Bytes()...)
	buf = append(buf, domainVersion.Bytes()...)
	buf = append(buf, padUint256(domainChainID)...)
	buf = append(buf, make([]byte, 32)...) // verifyingContract = zero address
	var out [32]byte
	copy(out[:], crypto.Keccak256(buf))
	return out
}

func padUint256(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}

// signAction hashes the action, wraps it in the phantom agent and signs
// the typed-data digest. Testnet agents use source "b", mainnet "a".
func signAction(key *ecdsa.PrivateKey, action any, nonce uint64, testnet bool) (signature, error) {
	connectionID, err := actionHash(action, nonce)
	if err != nil {
		return signature{}, err
	}

	source := "a"
	if testnet {
		source = "b"
	}
	var structBuf []byte
	structBuf = append(structBuf, agentTypeHash.Bytes()...)
	structBuf = append(structBuf, crypto.Keccak256([]byte(source))...)
	structBuf = append(structBuf, connectionID[:]...)
	structHash := crypto.Keccak256(structBuf)

	sep := domainSeparator()
	digest := crypto.Keccak256(append(append([]byte{0x19, 0x01}, sep[:]...), structHash...))

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return signature{}, fmt.Errorf("sign action: %w", err)
	}
	return signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: sig[64] + 27,
	}, nil
}
