package accountsdb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
	"github.com/fortiblox/seashell/pkg/instruction"
	"github.com/fortiblox/seashell/pkg/remote"
	"github.com/fortiblox/seashell/pkg/scenario"
	"github.com/fortiblox/seashell/pkg/svm"
	"github.com/fortiblox/seashell/pkg/svm/loader/loadertest"
	"github.com/fortiblox/seashell/pkg/sysvar"
)

type sourceFunc func(ctx context.Context, id types.Pubkey) (*accounts.Account, error)

func (f sourceFunc) FetchAccount(ctx context.Context, id types.Pubkey) (*accounts.Account, error) {
	return f(ctx, id)
}

func lamports(n uint64) *accounts.Account {
	return &accounts.Account{Lamports: n, Owner: types.SystemProgramAddr}
}

func TestResolutionPrecedence(t *testing.T) {
	s := New()
	id := types.NewUniquePubkey()

	require.NoError(t, s.Write(id, lamports(1)))
	acct, layer, err := s.Locate(id)
	require.NoError(t, err)
	assert.Equal(t, LayerBase, layer)
	assert.Equal(t, uint64(1), acct.Lamports)

	s.SetOverride(id, lamports(2))
	acct, layer, err = s.Locate(id)
	require.NoError(t, err)
	assert.Equal(t, LayerOverride, layer)
	assert.Equal(t, uint64(2), acct.Lamports)

	s.Overlay().Insert(id, lamports(3))
	acct, layer, err = s.Locate(id)
	require.NoError(t, err)
	assert.Equal(t, LayerScenario, layer)
	assert.Equal(t, uint64(3), acct.Lamports)

	s.ClearOverrides()
	acct, ok, err := s.ResolveOptional(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), acct.Lamports)
}

func TestSysvarOutranksBase(t *testing.T) {
	s := New()

	clock := sysvar.Clock{Slot: 42, Epoch: 1}
	data, err := sysvar.Encode(&clock)
	require.NoError(t, err)
	require.NoError(t, s.Write(types.SysvarClockAddr, &accounts.Account{Data: data}))

	// A record planted directly in the base store is shadowed.
	require.NoError(t, s.Base().SetAccount(types.SysvarClockAddr, lamports(99)))

	acct, layer, err := s.Locate(types.SysvarClockAddr)
	require.NoError(t, err)
	assert.Equal(t, LayerSysvar, layer)
	assert.Equal(t, data, acct.Data)
	assert.Equal(t, types.SysvarOwnerAddr, acct.Owner)
	assert.Equal(t, uint64(42), s.Sysvars().Clock().Slot)
}

func TestWriteMalformedSysvar(t *testing.T) {
	s := New()
	before := s.Sysvars().Rent()

	err := s.Write(types.SysvarRentAddr, &accounts.Account{Data: []byte{1, 2}})
	assert.ErrorIs(t, err, sysvar.ErrInvalidEncoding)
	assert.Equal(t, before, s.Sysvars().Rent())

	has, err := s.Base().HasAccount(types.SysvarRentAddr)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestResolveRequired(t *testing.T) {
	ctx := context.Background()
	id := types.NewUniquePubkey()

	t.Run("no remote", func(t *testing.T) {
		_, err := New().ResolveRequired(ctx, id)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("remote hit caches in overlay", func(t *testing.T) {
		calls := 0
		src := sourceFunc(func(_ context.Context, got types.Pubkey) (*accounts.Account, error) {
			calls++
			assert.Equal(t, id, got)
			return lamports(7), nil
		})
		s := New(WithOverlay(scenario.RemoteOnly(src)))

		acct, err := s.ResolveRequired(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), acct.Lamports)
		assert.True(t, s.Overlay().Dirty())

		_, err = s.ResolveRequired(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("remote failure", func(t *testing.T) {
		src := sourceFunc(func(context.Context, types.Pubkey) (*accounts.Account, error) {
			return nil, errors.New("connection refused")
		})
		s := New(WithOverlay(scenario.RemoteOnly(src)))

		_, err := s.ResolveRequired(ctx, id)
		assert.ErrorIs(t, err, scenario.ErrRemoteFetchFailed)
		assert.NotErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("base errors propagate", func(t *testing.T) {
		db := accounts.NewMemoryDB()
		require.NoError(t, db.Close())
		_, _, err := New(WithBase(db)).ResolveOptional(id)
		assert.ErrorIs(t, err, accounts.ErrClosed)
	})
}

func TestAccountsForInstruction(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.LoadBuiltins(svm.NewFeatureSet()))

	a := types.NewUniquePubkey()
	require.NoError(t, s.Write(a, lamports(10)))

	t.Run("no references", func(t *testing.T) {
		got, err := s.AccountsForInstruction(ctx, &instruction.Instruction{ProgramID: types.SystemProgramAddr}, false)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, types.SystemProgramAddr, got[0].Pubkey)
		assert.True(t, got[0].Account.Executable)
	})

	t.Run("duplicates kept in order", func(t *testing.T) {
		ix := &instruction.Instruction{
			ProgramID: types.SystemProgramAddr,
			Accounts: []instruction.AccountMeta{
				instruction.NewReadonlyAccountMeta(a, false),
				instruction.NewAccountMeta(a, true),
			},
		}
		got, err := s.AccountsForInstruction(ctx, ix, false)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, a, got[1].Pubkey)
		assert.Equal(t, a, got[2].Pubkey)
		assert.NotSame(t, got[1].Account, got[2].Account)
	})

	missing := types.NewUniquePubkey()
	ix := &instruction.Instruction{
		ProgramID: types.SystemProgramAddr,
		Accounts:  []instruction.AccountMeta{instruction.NewAccountMeta(missing, true)},
	}

	t.Run("missing reference", func(t *testing.T) {
		_, err := s.AccountsForInstruction(ctx, ix, false)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("allow uninitialized", func(t *testing.T) {
		got, err := s.AccountsForInstruction(ctx, ix, true)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[1].Account.IsZero())
		assert.Equal(t, types.SystemProgramAddr, got[1].Account.Owner)
	})

	t.Run("missing program", func(t *testing.T) {
		_, err := s.AccountsForInstruction(ctx, &instruction.Instruction{ProgramID: types.NewUniquePubkey()}, true)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestAllowUninitializedWithRemote(t *testing.T) {
	ctx := context.Background()
	known := types.NewUniquePubkey()
	src := sourceFunc(func(_ context.Context, id types.Pubkey) (*accounts.Account, error) {
		if id == known {
			return lamports(5), nil
		}
		return nil, remote.ErrAccountNotFound
	})
	s := New(WithOverlay(scenario.RemoteOnly(src)))
	require.NoError(t, s.LoadBuiltins(svm.NewFeatureSet()))

	ix := &instruction.Instruction{
		ProgramID: types.SystemProgramAddr,
		Accounts: []instruction.AccountMeta{
			instruction.NewAccountMeta(known, true),
			instruction.NewAccountMeta(types.NewUniquePubkey(), true),
		},
	}
	got, err := s.AccountsForInstruction(ctx, ix, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got[1].Account.Lamports)
	assert.True(t, got[2].Account.IsZero())

	_, err = s.AccountsForInstruction(ctx, ix, false)
	assert.ErrorIs(t, err, scenario.ErrRemoteFetchFailed)
}

func TestSysvarsForInstruction(t *testing.T) {
	s := New()
	s.Sysvars().Warp(10, 1000)

	passed := sysvar.Clock{Slot: 77}
	data, err := sysvar.Encode(&passed)
	require.NoError(t, err)

	env := s.SysvarsForInstruction([]svm.TransactionAccount{
		{Pubkey: types.SysvarClockAddr, Account: &accounts.Account{Data: data}},
	})
	clock, err := env.Clock()
	require.NoError(t, err)
	assert.Equal(t, uint64(77), clock.Slot)

	rent, err := env.Rent()
	require.NoError(t, err)
	assert.Equal(t, s.Sysvars().Rent(), rent)

	fees, ok := env.Get(types.SysvarFeesAddr)
	assert.True(t, ok)
	assert.Empty(t, fees)

	env = s.SysvarsForInstruction(nil)
	clock, err = env.Clock()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), clock.Slot)
}

func TestWriteRouting(t *testing.T) {
	s := New()
	inOverlay := types.NewUniquePubkey()
	inOverride := types.NewUniquePubkey()
	inBase := types.NewUniquePubkey()
	s.Overlay().Insert(inOverlay, lamports(1))
	s.SetOverride(inOverride, lamports(1))
	require.NoError(t, s.Write(inBase, lamports(1)))

	require.NoError(t, s.Write(inOverlay, lamports(2)))
	require.NoError(t, s.Write(inOverride, lamports(4)))
	require.NoError(t, s.Write(inBase, lamports(3)))

	acct, ok := s.Overlay().Get(inOverlay)
	require.True(t, ok)
	assert.Equal(t, uint64(2), acct.Lamports)
	has, err := s.Base().HasAccount(inOverlay)
	require.NoError(t, err)
	assert.False(t, has)

	acct, layer, err := s.Locate(inOverride)
	require.NoError(t, err)
	assert.Equal(t, LayerOverride, layer)
	assert.Equal(t, uint64(4), acct.Lamports)
	has, err = s.Base().HasAccount(inOverride)
	require.NoError(t, err)
	assert.False(t, has)

	acct, err = s.Base().GetAccount(inBase)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), acct.Lamports)

	clock := sysvar.Clock{Slot: 5}
	data, err := sysvar.Encode(&clock)
	require.NoError(t, err)
	require.NoError(t, s.Write(types.SysvarClockAddr, &accounts.Account{Data: data}))
	assert.Equal(t, uint64(5), s.Sysvars().Clock().Slot)
}

func TestLoadProgram(t *testing.T) {
	s := New()
	s.Sysvars().Warp(12, 0)
	id := types.NewUniquePubkey()
	image := loadertest.Image([]uint64{0xb7, 0x95})

	require.NoError(t, s.LoadProgram(id, image, types.BPFLoader2Addr))

	acct, err := s.ResolveRequired(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, acct.Executable)
	assert.Equal(t, types.BPFLoader2Addr, acct.Owner)
	assert.Equal(t, sysvar.DefaultRent().MinimumBalance(len(image)), acct.Lamports)
	assert.Equal(t, image, acct.Data)

	entry, ok := s.Programs().Get(id)
	require.True(t, ok)
	assert.Equal(t, svm.KindSBPF, entry.Kind)
	assert.Equal(t, uint64(12), entry.DeploymentSlot)
	require.NotNil(t, entry.Executable)
	assert.Len(t, entry.Executable.Text, 2)
}

func TestLoadProgramErrors(t *testing.T) {
	s := New()
	id := types.NewUniquePubkey()

	err := s.LoadProgram(id, []byte("not an elf"), types.BPFLoader2Addr)
	assert.ErrorIs(t, err, ErrProgramLoadFailed)

	image := loadertest.Image(loadertest.ExitProgram)
	err = s.LoadProgram(id, image, types.BPFLoaderUpgradeableAddr)
	assert.ErrorIs(t, err, ErrUnsupportedLoader)
	err = s.LoadProgram(id, image, types.SystemProgramAddr)
	assert.ErrorIs(t, err, ErrUnsupportedLoader)
	err = s.LoadProgram(types.Ed25519PrecompileAddr, image, types.BPFLoader2Addr)
	assert.ErrorIs(t, err, ErrProgramLoadFailed)

	_, ok, err := s.ResolveOptional(id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, s.Programs().Len())
}

func TestLoadBuiltins(t *testing.T) {
	tests := []struct {
		features *svm.FeatureSet
		r1       bool
	}{
		{svm.NewFeatureSet(), false},
		{svm.AllEnabled(), true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("secp256r1=%v", tt.r1), func(t *testing.T) {
			s := New()
			require.NoError(t, s.LoadBuiltins(tt.features))

			acct, ok, err := s.ResolveOptional(types.Ed25519PrecompileAddr)
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, acct.Equal(&accounts.Account{Lamports: 1, Owner: types.NativeLoaderAddr, Executable: true}))

			_, ok, err = s.ResolveOptional(types.Secp256r1PrecompileAddr)
			require.NoError(t, err)
			assert.Equal(t, tt.r1, ok)
			_, ok = s.Programs().Get(types.Secp256r1PrecompileAddr)
			assert.Equal(t, tt.r1, ok)
		})
	}
}
