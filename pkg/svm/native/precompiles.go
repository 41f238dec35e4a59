package native

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"github.com/fortiblox/seashell/internal/types"
)

// Precompile errors.
var (
	ErrInvalidInstructionDataSize = errors.New("precompile: invalid instruction data size")
	ErrInvalidDataOffsets         = errors.New("precompile: invalid data offsets")
	ErrInvalidSignature           = errors.New("precompile: invalid signature")
	ErrInvalidPublicKey           = errors.New("precompile: invalid public key")
	ErrInvalidRecoveryID          = errors.New("precompile: invalid recovery id")
)

// Layout constants shared by the ed25519 and secp256r1 precompiles.
const (
	signatureOffsetsStart = 2
	signatureOffsetsSize  = 14

	// currentInstruction refers to the instruction being verified.
	currentInstruction = 0xFFFF

	ed25519PublicKeySize = 32
	ed25519SignatureSize = 64

	secp256r1PublicKeySize = 33
	secp256r1SignatureSize = 64
	secp256r1MaxSignatures = 8
)

// Secp256k1 layout constants.
const (
	secp256k1OffsetsStart  = 1
	secp256k1OffsetsSize   = 11
	secp256k1SignatureSize = 64
	ethAddressSize         = 20
)

// secp256r1HalfOrder is n/2 of P-256; signatures with a higher s are
// rejected as malleable.
var secp256r1HalfOrder = new(big.Int).Rsh(elliptic.P256().Params().N, 1)

// VerifyPrecompile checks every signature in a precompile instruction.
func VerifyPrecompile(programID types.Pubkey, data []byte) error {
	switch programID {
	case types.Ed25519PrecompileAddr:
		return verifyEd25519(data)
	case types.Secp256k1PrecompileAddr:
		return verifySecp256k1(data)
	case types.Secp256r1PrecompileAddr:
		return verifySecp256r1(data)
	default:
		return fmt.Errorf("not a precompile: %s", programID)
	}
}

// signatureOffsets is the 14-byte offsets record of the ed25519 and
// secp256r1 precompiles.
type signatureOffsets struct {
	signatureOffset           uint16
	signatureInstructionIndex uint16
	publicKeyOffset           uint16
	publicKeyInstructionIndex uint16
	messageDataOffset         uint16
	messageDataSize           uint16
	messageInstructionIndex   uint16
}

func parseSignatureOffsets(b []byte) signatureOffsets {
	le := binary.LittleEndian
	return signatureOffsets{
		signatureOffset:           le.Uint16(b[0:]),
		signatureInstructionIndex: le.Uint16(b[2:]),
		publicKeyOffset:           le.Uint16(b[4:]),
		publicKeyInstructionIndex: le.Uint16(b[6:]),
		messageDataOffset:         le.Uint16(b[8:]),
		messageDataSize:           le.Uint16(b[10:]),
		messageInstructionIndex:   le.Uint16(b[12:]),
	}
}

// fetch slices size bytes at offset out of the referenced instruction. The
// harness runs single-instruction transactions, so index 0 is the current
// instruction as well.
func fetch(data []byte, index uint16, offset uint16, size int) ([]byte, error) {
	if index != currentInstruction && index != 0 {
		return nil, fmt.Errorf("%w: instruction index %d", ErrInvalidDataOffsets, index)
	}
	start := int(offset)
	if start+size > len(data) {
		return nil, ErrInvalidDataOffsets
	}
	return data[start : start+size], nil
}

// signatureRecords validates the count header and yields each offsets record.
func signatureRecords(data []byte, maxCount int) ([]signatureOffsets, error) {
	if len(data) < signatureOffsetsStart {
		return nil, ErrInvalidInstructionDataSize
	}
	count := int(data[0])
	if count == 0 && len(data) > signatureOffsetsStart {
		return nil, ErrInvalidInstructionDataSize
	}
	if maxCount > 0 && count > maxCount {
		return nil, ErrInvalidInstructionDataSize
	}
	if len(data) < signatureOffsetsStart+count*signatureOffsetsSize {
		return nil, ErrInvalidInstructionDataSize
	}
	out := make([]signatureOffsets, count)
	for i := range out {
		start := signatureOffsetsStart + i*signatureOffsetsSize
		out[i] = parseSignatureOffsets(data[start : start+signatureOffsetsSize])
	}
	return out, nil
}

func (o signatureOffsets) parts(data []byte, keySize, sigSize int) (sig, pub, msg []byte, err error) {
	if sig, err = fetch(data, o.signatureInstructionIndex, o.signatureOffset, sigSize); err != nil {
		return
	}
	if pub, err = fetch(data, o.publicKeyInstructionIndex, o.publicKeyOffset, keySize); err != nil {
		return
	}
	msg, err = fetch(data, o.messageInstructionIndex, o.messageDataOffset, int(o.messageDataSize))
	return
}

func verifyEd25519(data []byte) error {
	records, err := signatureRecords(data, 0)
	if err != nil {
		return err
	}
	for _, o := range records {
		sig, pub, msg, err := o.parts(data, ed25519PublicKeySize, ed25519SignatureSize)
		if err != nil {
			return err
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
			return ErrInvalidSignature
		}
	}
	return nil
}

func verifySecp256r1(data []byte) error {
	if len(data) >= 1 && data[0] == 0 {
		return ErrInvalidInstructionDataSize
	}
	records, err := signatureRecords(data, secp256r1MaxSignatures)
	if err != nil {
		return err
	}
	curve := elliptic.P256()
	for _, o := range records {
		sig, pub, msg, err := o.parts(data, secp256r1PublicKeySize, secp256r1SignatureSize)
		if err != nil {
			return err
		}
		x, y := elliptic.UnmarshalCompressed(curve, pub)
		if x == nil {
			return ErrInvalidPublicKey
		}
		r := new(big.Int).SetBytes(sig[:32])
		s := new(big.Int).SetBytes(sig[32:])
		if s.Cmp(secp256r1HalfOrder) > 0 {
			return ErrInvalidSignature
		}
		digest := sha256.Sum256(msg)
		if !ecdsa.Verify(&ecdsa.PublicKey{Curve: curve, X: x, Y: y}, digest[:], r, s) {
			return ErrInvalidSignature
		}
	}
	return nil
}

func verifySecp256k1(data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstructionDataSize
	}
	count := int(data[0])
	if count == 0 && len(data) > secp256k1OffsetsStart {
		return ErrInvalidInstructionDataSize
	}
	if len(data) < secp256k1OffsetsStart+count*secp256k1OffsetsSize {
		return ErrInvalidInstructionDataSize
	}

	le := binary.LittleEndian
	for i := 0; i < count; i++ {
		b := data[secp256k1OffsetsStart+i*secp256k1OffsetsSize:]
		sigOffset, sigIndex := le.Uint16(b[0:]), uint16(b[2])
		ethOffset, ethIndex := le.Uint16(b[3:]), uint16(b[5])
		msgOffset, msgSize, msgIndex := le.Uint16(b[6:]), le.Uint16(b[8:]), uint16(b[10])

		sig, err := fetch(data, sigIndex, sigOffset, secp256k1SignatureSize+1)
		if err != nil {
			return err
		}
		if sig[secp256k1SignatureSize] > 3 {
			return ErrInvalidRecoveryID
		}
		eth, err := fetch(data, ethIndex, ethOffset, ethAddressSize)
		if err != nil {
			return err
		}
		msg, err := fetch(data, msgIndex, msgOffset, int(msgSize))
		if err != nil {
			return err
		}

		pub, err := crypto.Ecrecover(keccak256(msg), sig)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		if !bytes.Equal(ethAddress(pub), eth) {
			return ErrInvalidSignature
		}
	}
	return nil
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// ethAddress derives the Ethereum address of an uncompressed public key.
func ethAddress(uncompressed []byte) []byte {
	return keccak256(uncompressed[1:])[12:]
}
