package crypto

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyHex(t *testing.T) string {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return hexutil.Encode(ethcrypto.FromECDSA(key))[2:]
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	keyHex := testKeyHex(t)

	blob, err := EncryptKey("0x"+keyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)

	_, err = DecryptKey(blob, "wrong")
	assert.ErrorIs(t, err, ErrKeyDecrypt)

	_, err = EncryptKey("0x1234", "hunter2")
	assert.Error(t, err)
	_, err = EncryptKey(keyHex, "")
	assert.Error(t, err)
}

func TestLoadKeySources(t *testing.T) {
	keyHex := testKeyHex(t)

	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + keyHex})
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)

	blob, err := EncryptKey(keyHex, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "treasury.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)

	_, err = LoadKey(KeyConfig{})
	assert.True(t, errors.Is(err, ErrNoKeySource))
}

func TestTxSignerSignsForChain(t *testing.T) {
	keyHex := testKeyHex(t)
	s, err := NewTxSigner(keyHex)
	require.NoError(t, err)

	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    1,
		GasPrice: big.NewInt(30_000_000_000),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(0),
	})

	chainID := big.NewInt(137)
	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)

	_, err = s.SignTx(tx, big.NewInt(0))
	assert.Error(t, err)
}
