package scenario

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
)

// FileExtension is the conventional suffix for scenario files.
const FileExtension = ".json.gz"

// hexBytes is account data in its persisted hex form.
type hexBytes []byte

func (h hexBytes) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(out, h)
	return out, nil
}

func (h *hexBytes) UnmarshalText(text []byte) error {
	out := make([]byte, hex.DecodedLen(len(text)))
	if _, err := hex.Decode(out, text); err != nil {
		return err
	}
	*h = out
	return nil
}

// fileAccount is the persisted account shape. Absent numeric and flag fields
// decode as zero.
type fileAccount struct {
	Lamports   uint64       `json:"lamports"`
	Data       hexBytes     `json:"data"`
	Owner      types.Pubkey `json:"owner"`
	Executable bool         `json:"executable"`
	RentEpoch  uint64       `json:"rent_epoch"`
}

// Encode renders entries in the persisted JSON form, before compression.
// Keys are base58 identifiers in sorted order.
func Encode(entries map[types.Pubkey]*accounts.Account) ([]byte, error) {
	out := make(map[types.Pubkey]fileAccount, len(entries))
	for id, acct := range entries {
		out[id] = fileAccount{
			Lamports:   acct.Lamports,
			Data:       hexBytes(acct.Data),
			Owner:      acct.Owner,
			Executable: acct.Executable,
			RentEpoch:  acct.RentEpoch,
		}
	}
	return json.Marshal(out)
}

// Decode parses the persisted JSON form.
func Decode(raw []byte) (map[types.Pubkey]*accounts.Account, error) {
	var in map[types.Pubkey]fileAccount
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	entries := make(map[types.Pubkey]*accounts.Account, len(in))
	for id, fa := range in {
		data := []byte(fa.Data)
		if data == nil {
			data = []byte{}
		}
		entries[id] = &accounts.Account{
			Lamports:   fa.Lamports,
			Data:       data,
			Owner:      fa.Owner,
			Executable: fa.Executable,
			RentEpoch:  fa.RentEpoch,
		}
	}
	return entries, nil
}

// readFile loads a scenario file. A missing file is not an error.
func readFile(path string) (map[types.Pubkey]*accounts.Account, bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open scenario %s: %w", path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s: %w", ErrMalformedScenario, path, err)
	}
	defer zr.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(zr).Decode(&raw); err != nil {
		return nil, true, fmt.Errorf("%w: %s: %w", ErrMalformedScenario, path, err)
	}
	entries, err := Decode(raw)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s: %w", ErrMalformedScenario, path, err)
	}
	return entries, true, nil
}

// writeFile creates parent directories and truncate-writes the compressed file.
func writeFile(path string, entries map[types.Pubkey]*accounts.Account) error {
	raw, err := Encode(entries)
	if err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create scenario dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open scenario for write: %w", err)
	}

	zw, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		f.Close()
		return fmt.Errorf("write scenario: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finish scenario: %w", err)
	}
	return f.Close()
}
