package secretstore

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.GetString(KeyAPIKey)
	require.NoError(t, err)
	require.False(t, found)

	names, err := s.ImportEnv(map[string]string{
		"BYBIT_API_SECRET": "sec",
		"BYBIT_API_KEY":    "key",
		"EMPTY":            "",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"BYBIT_API_KEY", "BYBIT_API_SECRET", "EMPTY"}, names)

	v, found, err := s.GetString(EnvPrefix + "EMPTY")
	require.NoError(t, err)
	require.True(t, found, "empty values still exist")
	require.Equal(t, "", v)

	key, secret, err := s.Credentials()
	require.NoError(t, err)
	require.Equal(t, "key", key)
	require.Equal(t, "sec", secret)

	require.NoError(t, s.Delete(KeyAPIKey))
	_, found, err = s.GetString(KeyAPIKey)
	require.NoError(t, err)
	require.False(t, found)
}

func TestClosedStore(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, _, err = s.GetString(KeyAPIKey)
	require.ErrorIs(t, err, ErrNotOpened)
}

func TestParseKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	b, err := ParseKey("0x" + hexKey)
	require.NoError(t, err)
	require.Len(t, b, 32)

	b64 := base64.StdEncoding.EncodeToString(make([]byte, 32))
	b, err = ParseKey(b64)
	require.NoError(t, err)
	require.Len(t, b, 32)

	b, err = ParseKey("")
	require.NoError(t, err)
	require.Nil(t, b)

	_, err = ParseKey("abcd")
	require.Error(t, err)

	_, err = ParseKey("!!not-a-key!!")
	require.Error(t, err)
}
