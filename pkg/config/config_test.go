package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpswap/pkg/swap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RPC_ENDPOINTS", "https://a.example, ,https://b.example")
	s, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, s.RPCEndpoints)
	assert.Equal(t, swap.ProgramID, s.ProgramID)
	assert.Equal(t, 30*time.Second, s.RefreshInterval)
	assert.Equal(t, 50, s.SlippageBps)
	assert.Equal(t, "info", s.LogLevel)

	key, err := s.DiscountConfigKey()
	require.NoError(t, err)
	assert.True(t, key.IsZero())
	_, err = s.ProgramKey()
	require.NoError(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "cpswap.yaml")
	require.NoError(t, os.WriteFile(file, []byte("slippage: 75\nlisten: \":9000\"\npools:\n  - "+swap.ProgramID+"\n"+
		"pairs:\n  - label: warm\n    pool: "+swap.ProgramID+"\n    amount: \"1000\"\n    exact-out: true\n"), 0o600))

	t.Setenv("CPSWAP_LOG_LEVEL", "debug")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("slippage", 50, "")
	flags.StringSlice("rpc", nil, "")
	require.NoError(t, flags.Parse([]string{"--slippage=120", "--rpc=https://flag.example"}))

	s, err := Load(file, flags)
	require.NoError(t, err)
	assert.Equal(t, 120, s.SlippageBps)
	assert.Equal(t, ":9000", s.ListenAddr)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, []string{"https://flag.example"}, s.RPCEndpoints)

	pools, err := s.PoolKeys()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, swap.ProgramID, pools[0].String())

	require.Len(t, s.Pairs, 1)
	assert.Equal(t, "warm", s.Pairs[0].Label)
	assert.Equal(t, "1000", s.Pairs[0].Amount)
	assert.True(t, s.Pairs[0].ExactOut)
}

func TestLoadRejectsBadSlippage(t *testing.T) {
	t.Setenv("CPSWAP_SLIPPAGE", "20000")
	_, err := Load("", nil)
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte("# comment\nexport CPSWAP_TEST_A=\"one\"\nCPSWAP_TEST_B=two\nbroken\n"), 0o600))
	t.Setenv("CPSWAP_TEST_B", "kept")
	os.Unsetenv("CPSWAP_TEST_A")
	t.Cleanup(func() { os.Unsetenv("CPSWAP_TEST_A") })

	require.NoError(t, LoadEnv(file))
	assert.Equal(t, "one", os.Getenv("CPSWAP_TEST_A"))
	assert.Equal(t, "kept", os.Getenv("CPSWAP_TEST_B"))
	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing")))
}
