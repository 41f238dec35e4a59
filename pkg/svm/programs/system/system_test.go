package system

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
	"github.com/fortiblox/seashell/pkg/svm"
	"github.com/fortiblox/seashell/pkg/sysvar"
)

type testContext struct {
	accounts []*svm.AccountInfo
	logs     []string
}

func (c *testContext) GetAccount(i int) (*svm.AccountInfo, error) {
	if i < 0 || i >= len(c.accounts) {
		return nil, errors.New("account index out of bounds")
	}
	return c.accounts[i], nil
}

func (c *testContext) NumAccounts() int { return len(c.accounts) }

func (c *testContext) GetRentMinimum(dataLen uint64) uint64 {
	return sysvar.DefaultRent().MinimumBalance(int(dataLen))
}

func (c *testContext) ConsumeCompute(uint64) error { return nil }

func (c *testContext) Log(msg string) { c.logs = append(c.logs, msg) }

func systemAccount(lamports uint64, signer, writable bool) *svm.AccountInfo {
	return &svm.AccountInfo{
		Key:        types.NewUniquePubkey(),
		Account:    &accounts.Account{Lamports: lamports, Owner: ProgramID},
		IsSigner:   signer,
		IsWritable: writable,
	}
}

func TestTransfer(t *testing.T) {
	from := systemAccount(1000, true, true)
	to := systemAccount(0, false, true)
	ctx := &testContext{accounts: []*svm.AccountInfo{from, to}}

	require.NoError(t, NewProcessor().Process(ctx, TransferParams{Lamports: 500}.Encode()))
	assert.Equal(t, uint64(500), from.Lamports)
	assert.Equal(t, uint64(500), to.Lamports)
	assert.Equal(t, []string{"Transfer: success"}, ctx.logs)
}

func TestTransferErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(from, to *svm.AccountInfo)
		amount  uint64
		wantErr error
	}{
		{"insufficient funds", func(_, _ *svm.AccountInfo) {}, 2000, ErrInsufficientFunds},
		{"from not signer", func(from, _ *svm.AccountInfo) { from.IsSigner = false }, 1, ErrMissingRequiredSignature},
		{"to readonly", func(_, to *svm.AccountInfo) { to.IsWritable = false }, 1, ErrAccountNotWritable},
		{"from carries data", func(from, _ *svm.AccountInfo) { from.Data = []byte{1} }, 1, ErrTransferFromDataAccount},
		{"from not system owned", func(from, _ *svm.AccountInfo) { from.Owner = types.NewUniquePubkey() }, 1, ErrInvalidAccountOwner},
		{"overflow", func(_, to *svm.AccountInfo) { to.Lamports = ^uint64(0) }, 1, ErrLamportsOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := systemAccount(1000, true, true)
			to := systemAccount(0, false, true)
			tt.setup(from, to)
			before := from.Lamports
			ctx := &testContext{accounts: []*svm.AccountInfo{from, to}}

			err := NewProcessor().Process(ctx, TransferParams{Lamports: tt.amount}.Encode())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, from.Lamports)
		})
	}
}

func TestTransferToSelfAliases(t *testing.T) {
	acct := &accounts.Account{Lamports: 100, Owner: ProgramID}
	key := types.NewUniquePubkey()
	ctx := &testContext{accounts: []*svm.AccountInfo{
		{Key: key, Account: acct, IsSigner: true, IsWritable: true},
		{Key: key, Account: acct, IsSigner: true, IsWritable: true},
	}}

	require.NoError(t, NewProcessor().Process(ctx, TransferParams{Lamports: 40}.Encode()))
	assert.Equal(t, uint64(100), acct.Lamports)
}

func TestCreateAccount(t *testing.T) {
	funder := systemAccount(10_000_000, true, true)
	target := systemAccount(0, true, true)
	owner := types.NewUniquePubkey()
	ctx := &testContext{accounts: []*svm.AccountInfo{funder, target}}

	lamports := sysvar.DefaultRent().MinimumBalance(100)
	data := CreateAccountParams{Lamports: lamports, Space: 100, Owner: owner}.Encode()
	require.NoError(t, NewProcessor().Process(ctx, data))

	assert.Equal(t, 10_000_000-lamports, funder.Lamports)
	assert.Equal(t, lamports, target.Lamports)
	assert.Len(t, target.Data, 100)
	assert.Equal(t, owner, target.Owner)
}

func TestCreateAccountErrors(t *testing.T) {
	owner := types.NewUniquePubkey()
	enough := sysvar.DefaultRent().MinimumBalance(0)

	t.Run("in use", func(t *testing.T) {
		target := systemAccount(1, true, true)
		ctx := &testContext{accounts: []*svm.AccountInfo{systemAccount(enough*2, true, true), target}}
		err := NewProcessor().Process(ctx, CreateAccountParams{Lamports: enough, Owner: owner}.Encode())
		assert.ErrorIs(t, err, ErrAccountAlreadyInUse)
	})
	t.Run("not rent exempt", func(t *testing.T) {
		ctx := &testContext{accounts: []*svm.AccountInfo{systemAccount(enough*2, true, true), systemAccount(0, true, true)}}
		err := NewProcessor().Process(ctx, CreateAccountParams{Lamports: enough - 1, Owner: owner}.Encode())
		assert.ErrorIs(t, err, ErrAccountNotRentExempt)
	})
	t.Run("new account must sign", func(t *testing.T) {
		ctx := &testContext{accounts: []*svm.AccountInfo{systemAccount(enough*2, true, true), systemAccount(0, false, true)}}
		err := NewProcessor().Process(ctx, CreateAccountParams{Lamports: enough, Owner: owner}.Encode())
		assert.ErrorIs(t, err, ErrMissingRequiredSignature)
	})
	t.Run("too large", func(t *testing.T) {
		ctx := &testContext{accounts: []*svm.AccountInfo{systemAccount(enough*2, true, true), systemAccount(0, true, true)}}
		err := NewProcessor().Process(ctx, CreateAccountParams{Space: accounts.MaxAccountDataSize + 1, Owner: owner}.Encode())
		assert.ErrorIs(t, err, ErrAccountDataTooLarge)
	})
	t.Run("missing accounts", func(t *testing.T) {
		ctx := &testContext{accounts: []*svm.AccountInfo{systemAccount(enough*2, true, true)}}
		err := NewProcessor().Process(ctx, CreateAccountParams{Lamports: enough, Owner: owner}.Encode())
		assert.ErrorIs(t, err, ErrNotEnoughAccountKeys)
	})
}

func TestAssignAndAllocate(t *testing.T) {
	account := systemAccount(0, true, true)
	ctx := &testContext{accounts: []*svm.AccountInfo{account}}
	p := NewProcessor()

	require.NoError(t, p.Process(ctx, AllocateData(64)))
	assert.Len(t, account.Data, 64)

	err := p.Process(ctx, AllocateData(128))
	assert.ErrorIs(t, err, ErrAccountAlreadyInUse)

	owner := types.NewUniquePubkey()
	require.NoError(t, p.Process(ctx, AssignData(owner)))
	assert.Equal(t, owner, account.Owner)

	// Reassigning to the current owner is a no-op even though the account
	// is no longer system owned.
	require.NoError(t, p.Process(ctx, AssignData(owner)))
	assert.ErrorIs(t, p.Process(ctx, AssignData(types.NewUniquePubkey())), ErrInvalidAccountOwner)
}

func TestCreateAccountWithSeed(t *testing.T) {
	funder := systemAccount(10_000_000, true, true)
	owner := types.NewUniquePubkey()
	target := systemAccount(0, false, true)
	target.Key = CreateWithSeedAddress(funder.Key, "vault", owner)
	ctx := &testContext{accounts: []*svm.AccountInfo{funder, target}}

	params := CreateAccountParams{Lamports: sysvar.DefaultRent().MinimumBalance(8), Space: 8, Owner: owner}
	require.NoError(t, NewProcessor().Process(ctx, CreateAccountWithSeedData(funder.Key, "vault", params)))
	assert.Equal(t, owner, target.Owner)

	// Wrong seed
	other := systemAccount(0, false, true)
	ctx = &testContext{accounts: []*svm.AccountInfo{funder, other}}
	err := NewProcessor().Process(ctx, CreateAccountWithSeedData(funder.Key, "vault", params))
	assert.ErrorIs(t, err, ErrAddressWithSeedMismatch)
}

func TestTransferWithSeed(t *testing.T) {
	base := systemAccount(0, true, false)
	from := systemAccount(300, false, true)
	from.Key = CreateWithSeedAddress(base.Key, "s", ProgramID)
	to := systemAccount(0, false, true)
	ctx := &testContext{accounts: []*svm.AccountInfo{from, base, to}}

	require.NoError(t, NewProcessor().Process(ctx, TransferWithSeedData(100, "s", ProgramID)))
	assert.Equal(t, uint64(200), from.Lamports)
	assert.Equal(t, uint64(100), to.Lamports)
}

func TestInvalidInstructions(t *testing.T) {
	p := NewProcessor()
	ctx := &testContext{}

	assert.ErrorIs(t, p.Process(ctx, nil), ErrInvalidInstructionData)
	assert.ErrorIs(t, p.Process(ctx, []byte{99, 0, 0, 0}), ErrInvalidInstructionData)
	assert.ErrorIs(t, p.Process(ctx, []byte{2, 0, 0, 0, 1}), ErrInvalidInstructionData)
	assert.ErrorIs(t, p.Process(ctx, []byte{InstructionAdvanceNonceAccount, 0, 0, 0}), ErrUnsupportedInstruction)

	long := make([]byte, MaxSeedLen+1)
	for i := range long {
		long[i] = 'a'
	}
	data := TransferWithSeedData(1, string(long), ProgramID)
	assert.ErrorIs(t, p.Process(ctx, data), ErrInvalidSeed)
}
