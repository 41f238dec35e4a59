package types

// Native program and loader addresses.
var (
	SystemProgramAddr        = MustPubkeyFromBase58("11111111111111111111111111111111")
	ComputeBudgetProgramAddr = MustPubkeyFromBase58("ComputeBudget111111111111111111111111111111")

	// NativeLoaderAddr owns builtin and precompile marker accounts.
	NativeLoaderAddr = MustPubkeyFromBase58("NativeLoader1111111111111111111111111111111")

	BPFLoaderAddr            = MustPubkeyFromBase58("BPFLoader1111111111111111111111111111111111")
	BPFLoader2Addr           = MustPubkeyFromBase58("BPFLoader2111111111111111111111111111111111")
	BPFLoaderUpgradeableAddr = MustPubkeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")
	LoaderV4Addr             = MustPubkeyFromBase58("LoaderV411111111111111111111111111111111111")

	Ed25519PrecompileAddr   = MustPubkeyFromBase58("Ed25519SigVerify111111111111111111111111111")
	Secp256k1PrecompileAddr = MustPubkeyFromBase58("KeccakSecp256k11111111111111111111111111111")
	Secp256r1PrecompileAddr = MustPubkeyFromBase58("Secp256r1SigVerify1111111111111111111111111")
)

// SPL program addresses.
var (
	TokenProgramAddr           = MustPubkeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramAddr = MustPubkeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	Token2022ProgramAddr       = MustPubkeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
)

// Sysvar addresses.
var (
	// SysvarOwnerAddr owns every sysvar account.
	SysvarOwnerAddr = MustPubkeyFromBase58("Sysvar1111111111111111111111111111111111111")

	SysvarClockAddr             = MustPubkeyFromBase58("SysvarC1ock11111111111111111111111111111111")
	SysvarRentAddr              = MustPubkeyFromBase58("SysvarRent111111111111111111111111111111111")
	SysvarEpochScheduleAddr     = MustPubkeyFromBase58("SysvarEpochSchedu1e111111111111111111111111")
	SysvarFeesAddr              = MustPubkeyFromBase58("SysvarFees111111111111111111111111111111111")
	SysvarRecentBlockhashesAddr = MustPubkeyFromBase58("SysvarRecentB1ockHashes11111111111111111111")
	SysvarSlotHashesAddr        = MustPubkeyFromBase58("SysvarS1otHashes111111111111111111111111111")
	SysvarStakeHistoryAddr      = MustPubkeyFromBase58("SysvarStakeHistory1111111111111111111111111")
	SysvarEpochRewardsAddr      = MustPubkeyFromBase58("SysvarEpochRewards1111111111111111111111111")
	SysvarLastRestartSlotAddr   = MustPubkeyFromBase58("SysvarLastRestartS1ot1111111111111111111111")
)

// Feature gates consulted by the builtin registry.
var (
	// FeatureSecp256r1Precompile enables the secp256r1 signature precompile.
	FeatureSecp256r1Precompile = MustPubkeyFromBase58("srremy31J5Y25FrAApwVb9kZcfXbusYMMsvTK9aWv5q")
)

// IsLoader returns true if the pubkey is one of the sBPF program loaders.
func IsLoader(p Pubkey) bool {
	switch p {
	case BPFLoaderAddr,
		BPFLoader2Addr,
		BPFLoaderUpgradeableAddr,
		LoaderV4Addr:
		return true
	default:
		return false
	}
}

// IsPrecompile returns true if the pubkey is a precompile program.
func IsPrecompile(p Pubkey) bool {
	switch p {
	case Ed25519PrecompileAddr,
		Secp256k1PrecompileAddr,
		Secp256r1PrecompileAddr:
		return true
	default:
		return false
	}
}
