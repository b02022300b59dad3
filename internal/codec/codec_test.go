package codec

import (
	"bytes"
	stderrors "errors"
	"testing"

	"esdtscan/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBase64(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"empty", "", []byte{}, false},
		{"padded", "QDAw", []byte("@00"), false},
		{"double padding", "aQ==", []byte("i"), false},
		{"trailing newline", "QDAw\n", []byte("@00"), false},
		{"embedded newline", "QD\nAw", nil, true},
		{"url alphabet", "-_-_", nil, true},
		{"missing padding", "aQ", nil, true},
		{"non alphabet", "QD$w", nil, true},
		{"two trailing newlines", "QDAw\n\n", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBase64(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, stderrors.Is(err, errors.ErrMalformedBase64))
				return
			}
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.want, got), "got %q", got)
		})
	}
}

func TestEncodeBase64(t *testing.T) {
	data := []byte("ESDTSetBurnRoleForAll")
	decoded, err := DecodeBase64(EncodeBase64(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestDecodeHex(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"empty", "", []byte{}, false},
		{"zero byte", "00", []byte{0x00}, false},
		{"ticker", "47454e2d383638353933", []byte("GEN-868593"), false},
		{"uppercase", "0A", nil, true},
		{"odd length", "abc", nil, true},
		{"prefix", "0x00", nil, true},
		{"separator", "00 01", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHex(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, stderrors.Is(err, errors.ErrMalformedHex))
				return
			}
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.want, got))
		})
	}
}

func TestSplitCallData(t *testing.T) {
	call, err := SplitCallData([]byte("issueNonFungible@67656e657a7973@47454e"))
	require.NoError(t, err)
	assert.Equal(t, "issueNonFungible", call.Function)
	require.Equal(t, 2, call.ArgCount())
	assert.Equal(t, []byte("genezys"), call.Args[0])
	assert.Equal(t, []byte("GEN"), call.Args[1])
	assert.False(t, call.IsSuccessCallback())
}

func TestSplitCallData_Callback(t *testing.T) {
	call, err := SplitCallData([]byte("@00@47454e2d383638353933"))
	require.NoError(t, err)
	assert.Equal(t, "", call.Function)
	assert.True(t, call.IsSuccessCallback())

	tid, ok := call.Arg(1)
	require.True(t, ok)
	assert.Equal(t, "GEN-868593", string(tid))

	_, ok = call.Arg(2)
	assert.False(t, ok)
	_, ok = call.Arg(-1)
	assert.False(t, ok)
}

func TestSplitCallData_EdgeCases(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		call, err := SplitCallData(nil)
		require.NoError(t, err)
		assert.Equal(t, "", call.Function)
		assert.Equal(t, 0, call.ArgCount())
	})

	t.Run("function only", func(t *testing.T) {
		call, err := SplitCallData([]byte("claim"))
		require.NoError(t, err)
		assert.Equal(t, "claim", call.Function)
		assert.Empty(t, call.Args)
	})

	t.Run("trailing separator keeps empty argument", func(t *testing.T) {
		call, err := SplitCallData([]byte("ESDTTransfer@4142@"))
		require.NoError(t, err)
		require.Equal(t, 2, call.ArgCount())
		assert.Equal(t, []byte("AB"), call.Args[0])
		assert.Empty(t, call.Args[1])
	})

	t.Run("empty middle field", func(t *testing.T) {
		call, err := SplitCallData([]byte("f@@01"))
		require.NoError(t, err)
		require.Equal(t, 2, call.ArgCount())
		assert.Empty(t, call.Args[0])
		assert.Equal(t, []byte{0x01}, call.Args[1])
	})

	t.Run("non zero callback code", func(t *testing.T) {
		call, err := SplitCallData([]byte("@04@75736572206572726f72"))
		require.NoError(t, err)
		assert.False(t, call.IsSuccessCallback())
	})

	t.Run("bare separator", func(t *testing.T) {
		call, err := SplitCallData([]byte("@"))
		require.NoError(t, err)
		assert.Equal(t, "", call.Function)
		require.Equal(t, 1, call.ArgCount())
		assert.False(t, call.IsSuccessCallback())
	})
}

func TestSplitCallData_MalformedField(t *testing.T) {
	_, err := SplitCallData([]byte("issue@4142@zz@00"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrMalformedCallData))

	var scanErr *errors.ScanError
	require.True(t, stderrors.As(err, &scanErr))
	require.NotNil(t, scanErr.FieldIndex)
	assert.Equal(t, 2, *scanErr.FieldIndex)
	assert.True(t, stderrors.Is(scanErr.Cause, errors.ErrMalformedHex))
}

func TestSplitCallData_InvalidUTF8Function(t *testing.T) {
	_, err := SplitCallData([]byte{0xff, 0xfe, '@', '0', '0'})
	require.Error(t, err)

	var scanErr *errors.ScanError
	require.True(t, stderrors.As(err, &scanErr))
	require.NotNil(t, scanErr.FieldIndex)
	assert.Equal(t, 0, *scanErr.FieldIndex)
}

func TestEncodeCallData(t *testing.T) {
	encoded := EncodeCallData("issueSemiFungible", []byte("DopeTest"), []byte("DOPETEST"))
	assert.Equal(t, "issueSemiFungible@446f706554657374@444f504554455354", string(encoded))

	assert.Equal(t, "@00@", string(EncodeCallData("", []byte{0x00}, []byte{})))

	call, err := SplitCallData(encoded)
	require.NoError(t, err)
	assert.Equal(t, "issueSemiFungible", call.Function)
	assert.Equal(t, []byte("DOPETEST"), call.Args[1])
}

func TestAddressRoundTrip(t *testing.T) {
	pubkey := bytes.Repeat([]byte{0x01}, AddressLength)

	address, err := EncodeAddress(pubkey)
	require.NoError(t, err)
	assert.True(t, len(address) > len(AddressHRP)+1)
	assert.Equal(t, AddressHRP+"1", address[:4])
	assert.True(t, IsValidAddress(address))

	decoded, err := DecodeAddress(address)
	require.NoError(t, err)
	assert.Equal(t, pubkey, decoded)
}

func TestEncodeAddress_SystemContract(t *testing.T) {
	pubkey, err := DecodeHex("000000000000000000010000000000000000000000000000000000000002ffff")
	require.NoError(t, err)

	address, err := EncodeAddress(pubkey)
	require.NoError(t, err)
	assert.Equal(t, "erd1qqqqqqqqqqqqqqqpqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqzllls8a5w6u", address)
}

func TestAddressErrors(t *testing.T) {
	_, err := EncodeAddress([]byte{0x01, 0x02})
	assert.Error(t, err)

	assert.False(t, IsValidAddress(""))
	assert.False(t, IsValidAddress("not-an-address"))

	address, err := EncodeAddress(bytes.Repeat([]byte{0x02}, AddressLength))
	require.NoError(t, err)
	corrupted := address[:len(address)-1] + "q"
	if corrupted == address {
		corrupted = address[:len(address)-1] + "p"
	}
	assert.False(t, IsValidAddress(corrupted))
}
