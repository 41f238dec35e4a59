package native

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

func putSignatureOffsets(b []byte, o signatureOffsets) {
	le := binary.LittleEndian
	le.PutUint16(b[0:], o.signatureOffset)
	le.PutUint16(b[2:], o.signatureInstructionIndex)
	le.PutUint16(b[4:], o.publicKeyOffset)
	le.PutUint16(b[6:], o.publicKeyInstructionIndex)
	le.PutUint16(b[8:], o.messageDataOffset)
	le.PutUint16(b[10:], o.messageDataSize)
	le.PutUint16(b[12:], o.messageInstructionIndex)
}

// signedLayout lays out [count, pad, offsets, key, sig, msg] for the
// ed25519 and secp256r1 precompiles.
func signedLayout(pub, sig, msg []byte) []byte {
	keyOff := signatureOffsetsStart + signatureOffsetsSize
	sigOff := keyOff + len(pub)
	msgOff := sigOff + len(sig)

	data := make([]byte, msgOff+len(msg))
	data[0] = 1
	putSignatureOffsets(data[signatureOffsetsStart:], signatureOffsets{
		signatureOffset:           uint16(sigOff),
		signatureInstructionIndex: currentInstruction,
		publicKeyOffset:           uint16(keyOff),
		publicKeyInstructionIndex: currentInstruction,
		messageDataOffset:         uint16(msgOff),
		messageDataSize:           uint16(len(msg)),
		messageInstructionIndex:   currentInstruction,
	})
	copy(data[keyOff:], pub)
	copy(data[sigOff:], sig)
	copy(data[msgOff:], msg)
	return data
}

// NewEd25519InstructionData signs msg and returns ed25519 precompile
// instruction data carrying one signature.
func NewEd25519InstructionData(key ed25519.PrivateKey, msg []byte) []byte {
	pub := key.Public().(ed25519.PublicKey)
	return signedLayout(pub, ed25519.Sign(key, msg), msg)
}

// NewSecp256r1InstructionData signs sha256(msg) with a low-s P-256
// signature and returns secp256r1 precompile instruction data.
func NewSecp256r1InstructionData(key *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if s.Cmp(secp256r1HalfOrder) > 0 {
		s = new(big.Int).Sub(key.Curve.Params().N, s)
	}
	sig := make([]byte, secp256r1SignatureSize)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	pub := elliptic.MarshalCompressed(key.Curve, key.X, key.Y)
	return signedLayout(pub, sig, msg), nil
}

// NewSecp256k1InstructionData signs keccak256(msg) and returns secp256k1
// precompile instruction data laid out as
// [count, offsets, eth address, signature, recovery id, msg].
func NewSecp256k1InstructionData(key *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(keccak256(msg), key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	eth := crypto.PubkeyToAddress(key.PublicKey)

	ethOff := secp256k1OffsetsStart + secp256k1OffsetsSize
	sigOff := ethOff + ethAddressSize
	msgOff := sigOff + len(sig)

	data := make([]byte, msgOff+len(msg))
	data[0] = 1
	le := binary.LittleEndian
	b := data[secp256k1OffsetsStart:]
	le.PutUint16(b[0:], uint16(sigOff))
	le.PutUint16(b[3:], uint16(ethOff))
	le.PutUint16(b[6:], uint16(msgOff))
	le.PutUint16(b[8:], uint16(len(msg)))
	copy(data[ethOff:], eth[:])
	copy(data[sigOff:], sig)
	copy(data[msgOff:], msg)
	return data, nil
}
