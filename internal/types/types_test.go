package types

import (
	"encoding/json"
	"testing"
)

func TestPubkeyRoundTrip(t *testing.T) {
	for _, s := range []string{
		"11111111111111111111111111111111",
		"SysvarC1ock11111111111111111111111111111111",
		"srremy31J5Y25FrAApwVb9kZcfXbusYMMsvTK9aWv5q",
	} {
		p, err := PubkeyFromBase58(s)
		if err != nil {
			t.Fatalf("parse %s: %v", s, err)
		}
		if got := p.String(); got != s {
			t.Errorf("String() = %s, want %s", got, s)
		}
	}
}

func TestPubkeyFromBase58Invalid(t *testing.T) {
	if _, err := PubkeyFromBase58("0OIl"); err == nil {
		t.Error("expected error for non-base58 input")
	}
	if _, err := PubkeyFromBase58("abc"); err != ErrInvalidPubkey {
		t.Errorf("expected ErrInvalidPubkey, got %v", err)
	}
}

func TestSystemProgramIsZero(t *testing.T) {
	if !SystemProgramAddr.IsZero() {
		t.Error("system program address should be all zeros")
	}
}

func TestNewUniquePubkey(t *testing.T) {
	seen := make(map[Pubkey]bool)
	for i := 0; i < 100; i++ {
		p := NewUniquePubkey()
		if seen[p] {
			t.Fatalf("duplicate unique pubkey %s", p)
		}
		seen[p] = true
	}
}

func TestPubkeyJSONMapKey(t *testing.T) {
	in := map[Pubkey]int{SysvarRentAddr: 7}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"SysvarRent111111111111111111111111111111111":7}` {
		t.Errorf("unexpected encoding %s", raw)
	}
	var out map[Pubkey]int
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[SysvarRentAddr] != 7 {
		t.Errorf("round trip lost value: %v", out)
	}
}

func TestIsLoader(t *testing.T) {
	if !IsLoader(BPFLoader2Addr) {
		t.Error("bpf loader v2 should be a loader")
	}
	if IsLoader(SystemProgramAddr) {
		t.Error("system program is not a loader")
	}
}

func TestIsPrecompile(t *testing.T) {
	for _, p := range []Pubkey{Ed25519PrecompileAddr, Secp256k1PrecompileAddr, Secp256r1PrecompileAddr} {
		if !IsPrecompile(p) {
			t.Errorf("%s should be a precompile", p)
		}
	}
	if IsPrecompile(BPFLoader2Addr) {
		t.Error("bpf loader v2 is not a precompile")
	}
}

func TestHashTextRoundTrip(t *testing.T) {
	h := ComputeHash([]byte("seashell"))
	raw, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Hash
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != h {
		t.Errorf("round trip = %s, want %s", out, h)
	}
	if err := out.UnmarshalText([]byte("abc")); err != ErrInvalidHash {
		t.Errorf("expected ErrInvalidHash, got %v", err)
	}
}
