package native

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
	"github.com/fortiblox/seashell/pkg/svm"
	"github.com/fortiblox/seashell/pkg/sysvar"
)

// invocation is the svm.InvokeContext for one instruction. Working copies
// are kept per transaction index; only first occurrences are ever handed
// out, so duplicate references alias one account.
type invocation struct {
	keys    []types.Pubkey
	pre     []*accounts.Account
	working []*accounts.Account

	// distinct holds the first-occurrence transaction indices in order.
	distinct []int
	writable map[int]bool

	infos []*svm.AccountInfo
	rent  sysvar.Rent
	meter *svm.ComputeMeter
	logs  []string
}

var _ svm.InvokeContext = (*invocation)(nil)

var errAccountOutOfBounds = errors.New("account index out of bounds")

func newInvocation(req *svm.Request, meter *svm.ComputeMeter) (*invocation, error) {
	n := len(req.Accounts)
	if n == 0 {
		return nil, fmt.Errorf("%w: no program account", svm.ErrMissingAccount)
	}

	inv := &invocation{
		keys:     make([]types.Pubkey, n),
		pre:      make([]*accounts.Account, n),
		working:  make([]*accounts.Account, n),
		writable: make(map[int]bool),
		rent:     sysvar.DefaultRent(),
		meter:    meter,
	}

	seen := make(map[types.Pubkey]bool, n)
	for i, ta := range req.Accounts {
		acct := ta.Account
		if acct == nil {
			acct = &accounts.Account{}
		}
		inv.keys[i] = ta.Pubkey
		inv.pre[i] = acct.Clone()
		inv.working[i] = acct.Clone()
		if !seen[ta.Pubkey] {
			seen[ta.Pubkey] = true
			inv.distinct = append(inv.distinct, i)
		}
	}

	for _, c := range req.InstructionAccounts {
		idx := int(c.IndexInTransaction)
		if idx >= n {
			return nil, fmt.Errorf("%w: %d >= %d", svm.ErrMissingAccount, idx, n)
		}
		inv.infos = append(inv.infos, &svm.AccountInfo{
			Key:        inv.keys[idx],
			Account:    inv.working[idx],
			IsSigner:   c.IsSigner,
			IsWritable: c.IsWritable,
		})
		if c.IsWritable {
			inv.writable[idx] = true
		}
	}

	if req.Sysvars != nil {
		if r, err := req.Sysvars.Rent(); err == nil {
			inv.rent = r
		}
	}
	return inv, nil
}

func (c *invocation) GetAccount(index int) (*svm.AccountInfo, error) {
	if index < 0 || index >= len(c.infos) {
		return nil, errAccountOutOfBounds
	}
	return c.infos[index], nil
}

func (c *invocation) NumAccounts() int { return len(c.infos) }

func (c *invocation) GetRentMinimum(dataLen uint64) uint64 {
	if dataLen > accounts.MaxAccountDataSize {
		return math.MaxUint64
	}
	return c.rent.MinimumBalance(int(dataLen))
}

func (c *invocation) ConsumeCompute(units uint64) error {
	return c.meter.Consume(units)
}

func (c *invocation) Log(msg string) {
	c.logs = append(c.logs, "Program log: "+msg)
}

// verify enforces the post-instruction account rules.
func (c *invocation) verify() error {
	var preHi, preLo, postHi, postLo uint64
	for _, i := range c.distinct {
		if !c.writable[i] && !c.pre[i].Equal(c.working[i]) {
			return fmt.Errorf("%w: %s", svm.ErrReadonlyAccountModified, c.keys[i])
		}
		preHi, preLo = add128(preHi, preLo, c.pre[i].Lamports)
		postHi, postLo = add128(postHi, postLo, c.working[i].Lamports)
	}
	if preHi != postHi || preLo != postLo {
		return svm.ErrUnbalancedInstruction
	}
	return nil
}

func add128(hi, lo, v uint64) (uint64, uint64) {
	lo, carry := bits.Add64(lo, v, 0)
	return hi + carry, lo
}

func (c *invocation) postAccounts() []svm.TransactionAccount {
	out := make([]svm.TransactionAccount, 0, len(c.distinct))
	for _, i := range c.distinct {
		out = append(out, svm.TransactionAccount{Pubkey: c.keys[i], Account: c.working[i]})
	}
	return out
}
