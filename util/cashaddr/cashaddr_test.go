package cashaddr

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

func TestEncodeDecodeVectors(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		addrType AddressType
		hash     string
		addr     string
	}{
		{
			name:     "mainnet p2pkh 20 byte",
			prefix:   "bitcoincash",
			addrType: TypeP2PKH,
			hash:     "f5bf48b397dae70be82b3cca4793f8eb2b6cdac9",
			addr:     "bitcoincash:qr6m7j9njldwwzlg9v7v53unlr4jkmx6eylep8ekg2",
		},
		{
			name:     "mainnet token-aware p2pkh",
			prefix:   "bitcoincash",
			addrType: TypeP2PKHWithTokens,
			hash:     "fc916f213a3d7f1369313d5fa30f6168f9446a2d",
			addr:     "bitcoincash:zr7fzmep8g7h7ymfxy74lgc0v950j3r295z4y4gq0v",
		},
		{
			name:     "mainnet p2sh 20 byte",
			prefix:   "bitcoincash",
			addrType: TypeP2SH,
			hash:     "1948b5c4eacd0ca8d7f4e7f05c83d0c92425abea",
			addr:     "bitcoincash:pqv53dwyatxse2xh7nnlqhyr6ryjgfdtagkd4vc388",
		},
		{
			name:     "mainnet token-aware p2sh",
			prefix:   "bitcoincash",
			addrType: TypeP2SHWithTokens,
			hash:     "1948b5c4eacd0ca8d7f4e7f05c83d0c92425abea",
			addr:     "bitcoincash:rqv53dwyatxse2xh7nnlqhyr6ryjgfdtag38xjkhc5",
		},
		{
			name:     "mainnet p2pkh 24 byte",
			prefix:   "bitcoincash",
			addrType: TypeP2PKH,
			hash:     "7adbf6c17084bc86c1706827b41a56f5ca32865925e946ea",
			addr:     "bitcoincash:q9adhakpwzztepkpwp5z0dq62m6u5v5xtyj7j3h2ws4mr9g0",
		},
		{
			name:     "mainnet p2pkh 32 byte",
			prefix:   "bitcoincash",
			addrType: TypeP2PKH,
			hash:     "3173ef6623c6b48ffd1a3dcc0cc6489b0a07bb47a37f47cfef4fe69de825c060",
			addr:     "bitcoincash:qvch8mmxy0rtfrlarg7ucrxxfzds5pamg73h7370aa87d80gyhqxq5nlegake",
		},
		{
			name:     "mainnet p2sh 32 byte",
			prefix:   "bitcoincash",
			addrType: TypeP2SH,
			hash:     "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
			addr:     "bitcoincash:p0llllllllllllllllllllllllllllllllllllllllllllllllll7x3vthu35",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash := mustHex(t, tt.hash)

			encoded, err := Encode(tt.prefix, tt.addrType, hash)
			require.NoError(t, err)
			assert.Equal(t, tt.addr, encoded)

			addrType, decoded, err := Decode(tt.addr, tt.prefix)
			require.NoError(t, err)
			assert.Equal(t, tt.addrType, addrType)
			assert.Equal(t, hash, decoded)
		})
	}
}

func TestDecodeWithoutPrefix(t *testing.T) {
	addrType, hash, err := Decode("qr6m7j9njldwwzlg9v7v53unlr4jkmx6eylep8ekg2", "bitcoincash")
	require.NoError(t, err)
	assert.Equal(t, TypeP2PKH, addrType)
	assert.Equal(t, mustHex(t, "f5bf48b397dae70be82b3cca4793f8eb2b6cdac9"), hash)
}

func TestDecodeUppercase(t *testing.T) {
	addr := strings.ToUpper("qr6m7j9njldwwzlg9v7v53unlr4jkmx6eylep8ekg2")

	addrType, hash, err := Decode(addr, "bitcoincash")
	require.NoError(t, err)
	assert.Equal(t, TypeP2PKH, addrType)
	assert.Equal(t, mustHex(t, "f5bf48b397dae70be82b3cca4793f8eb2b6cdac9"), hash)
}

func TestDecodeRejects(t *testing.T) {
	valid := "bitcoincash:qr6m7j9njldwwzlg9v7v53unlr4jkmx6eylep8ekg2"

	t.Run("mixed case", func(t *testing.T) {
		mixed := "bitcoincash:qr6m7j9njldwwzlg9v7v53unlr4jkmx6eylep8ekG2"
		_, _, err := Decode(mixed, "bitcoincash")
		require.Error(t, err)
	})

	t.Run("corrupted checksum", func(t *testing.T) {
		corrupted := valid[:len(valid)-1] + "3"
		_, _, err := Decode(corrupted, "bitcoincash")
		require.Error(t, err)
	})

	t.Run("wrong prefix fails checksum", func(t *testing.T) {
		_, _, err := Decode("bchtest:qr6m7j9njldwwzlg9v7v53unlr4jkmx6eylep8ekg2", "bchtest")
		require.Error(t, err)
	})

	t.Run("invalid character", func(t *testing.T) {
		_, _, err := Decode("bitcoincash:qr6m7j9njldwwzlg9v7v53unlr4jkmx6eylep8ekb1", "bitcoincash")
		require.Error(t, err)
	})

	t.Run("empty payload", func(t *testing.T) {
		_, _, err := Decode("bitcoincash:", "bitcoincash")
		require.Error(t, err)
	})
}

func TestEncodeRejectsBadLength(t *testing.T) {
	_, err := Encode("bitcoincash", TypeP2PKH, make([]byte, 21))
	require.Error(t, err)
}
