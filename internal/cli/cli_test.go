package cli

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/config"
	"github.com/fortiblox/seashell/pkg/svm/programs/system"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	t.Setenv(config.EnvRPCURL, "")
	t.Setenv(config.EnvSBFOutDir, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "seashell.toml")
	body := fmt.Sprintf(`memoize = true
base_store_path = %q
journal_path = %q
log_level = "warn"
`, filepath.Join(dir, "accounts"), filepath.Join(dir, "journal.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "account", "airdrop", "history"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestParseInstruction(t *testing.T) {
	from, to := types.NewUniquePubkey(), types.NewUniquePubkey()
	raw := fmt.Sprintf(`{"program":%q,"accounts":[{"pubkey":%q,"signer":true,"writable":true},{"pubkey":%q,"writable":true}],"data":"0a0b"}`,
		types.SystemProgramAddr, from, to)

	ix, err := parseInstruction(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, types.SystemProgramAddr, ix.ProgramID)
	require.Len(t, ix.Accounts, 2)
	assert.True(t, ix.Accounts[0].IsSigner)
	assert.False(t, ix.Accounts[1].IsSigner)
	assert.True(t, ix.Accounts[1].IsWritable)
	assert.Equal(t, []byte{0x0a, 0x0b}, ix.Data)

	_, err = parseInstruction(strings.NewReader(`{"program":"not-base58!"}`))
	assert.Error(t, err)
	_, err = parseInstruction(strings.NewReader(`{"data":"zz"}`))
	assert.Error(t, err)
	_, err = parseInstruction(strings.NewReader(`{"extra":1}`))
	assert.Error(t, err)
}

func TestRunAndHistory(t *testing.T) {
	cfgPath := writeConfig(t)
	from, to := types.NewUniquePubkey(), types.NewUniquePubkey()

	_, err := execute(t, "", "-c", cfgPath, "airdrop", from.String(), "1000")
	require.NoError(t, err)
	_, err = execute(t, "", "-c", cfgPath, "airdrop", to.String(), "0")
	require.NoError(t, err)

	ix := fmt.Sprintf(`{"program":%q,"accounts":[{"pubkey":%q,"signer":true,"writable":true},{"pubkey":%q,"writable":true}],"data":%q}`,
		types.SystemProgramAddr, from, to, hex.EncodeToString(system.TransferParams{Lamports: 500}.Encode()))

	out, err := execute(t, ix, "-c", cfgPath, "run", "-i", "-")
	require.NoError(t, err)
	var res resultView
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, uint64(150), res.ComputeUnits)
	assert.Empty(t, res.Error)
	require.Len(t, res.Accounts, 3)

	out, err = execute(t, "", "-c", cfgPath, "account", to.String())
	require.NoError(t, err)
	var acct accountView
	require.NoError(t, json.Unmarshal([]byte(out), &acct))
	assert.Equal(t, uint64(500), acct.Lamports)

	// Overdraw: the result is printed and the exit code reports the failure.
	ix = strings.Replace(ix, hex.EncodeToString(system.TransferParams{Lamports: 500}.Encode()),
		hex.EncodeToString(system.TransferParams{Lamports: 5000}.Encode()), 1)
	out, err = execute(t, ix, "-c", cfgPath, "run", "-i", "-")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Accounts)

	out, err = execute(t, "", "-c", cfgPath, "history")
	require.NoError(t, err)
	var entries []entryView
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].Error)
	require.Len(t, entries[0].Accounts, 3)
	assert.Equal(t, from, entries[0].Accounts[1].Pubkey)
	assert.NotEqual(t, types.Hash{}, entries[0].Accounts[1].Hash)
	assert.NotEmpty(t, entries[1].Error)
	assert.Empty(t, entries[1].Accounts)

	out, err = execute(t, "", "-c", cfgPath, "history", "--after", "1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(2), entries[0].Seq)
}

func TestAccountNotFound(t *testing.T) {
	cfgPath := writeConfig(t)
	_, err := execute(t, "", "-c", cfgPath, "account", types.NewUniquePubkey().String())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCommandErrors(t *testing.T) {
	t.Setenv(config.EnvRPCURL, "")
	t.Setenv(config.EnvSBFOutDir, "")

	_, err := execute(t, "", "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "", "--log-level", "loud", "account", types.NewUniquePubkey().String())
	assert.Error(t, err)

	_, err = execute(t, "", "airdrop", types.NewUniquePubkey().String(), "-5")
	assert.Error(t, err)
}
