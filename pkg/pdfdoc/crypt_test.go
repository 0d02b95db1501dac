package pdfdoc

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rc4"
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/annotscan/internal/testpdf"
)

func TestSealRC4(t *testing.T) {
	h := &securityHandler{key: bytes.Repeat([]byte{7}, 16)}
	ref := Ref{Num: 4}
	obj := Dict{
		"T": String("abc"),
		"N": Integer(1),
		"A": Array{String("x"), Name("y")},
	}

	sealed, err := h.seal(ref, obj)
	require.NoError(t, err)
	dict := sealed.(Dict)
	assert.Equal(t, Integer(1), dict["N"])
	assert.Equal(t, Name("y"), dict["A"].(Array)[1])
	assert.Equal(t, String("abc"), obj["T"], "input must not change")

	c, err := rc4.NewCipher(h.objectKey(ref, false))
	require.NoError(t, err)
	plain := make([]byte, 3)
	c.XORKeyStream(plain, dict["T"].(String))
	assert.Equal(t, "abc", string(plain))

	// Sealing the decoded text again restores the stored bytes.
	again, err := h.seal(ref, String(plain))
	require.NoError(t, err)
	assert.Equal(t, dict["T"], again)
}

func TestSealAESStream(t *testing.T) {
	h := &securityHandler{key: bytes.Repeat([]byte{1}, 16), useAES: true}
	ref := Ref{Num: 9, Gen: 1}

	sealed, err := h.seal(ref, Stream{Dict: Dict{"Type": Name("XObject")}, Data: []byte("/H0 gs\n")})
	require.NoError(t, err)
	data := sealed.(Stream).Data
	require.Len(t, data, 2*aes.BlockSize)

	block, err := aes.NewCipher(h.objectKey(ref, true))
	require.NoError(t, err)
	plain := make([]byte, aes.BlockSize)
	cipher.NewCBCDecrypter(block, data[:aes.BlockSize]).CryptBlocks(plain, data[aes.BlockSize:])
	pad := int(plain[len(plain)-1])
	assert.Equal(t, "/H0 gs\n", string(plain[:len(plain)-pad]))
}

func TestObjectKeyLength(t *testing.T) {
	short := &securityHandler{key: bytes.Repeat([]byte{3}, 5)}
	assert.Len(t, short.objectKey(Ref{Num: 1}, true), 10)
	assert.Len(t, short.objectKey(Ref{Num: 1}, false), 16)

	long := &securityHandler{key: bytes.Repeat([]byte{3}, 16)}
	assert.Equal(t, long.objectKey(Ref{Num: 1}, true), long.objectKey(Ref{Num: 1}, false))
}

func TestReadRawObject(t *testing.T) {
	data := []byte("%PDF-1.7\n12 0 obj\n(old)\nendobj\n2 0 obj\n<< /O (a\\)b) >>\nendobj\n2 0 obj\n<< /O (new) >>\nendobj\n")

	body, err := readRawObject(bytes.NewReader(data), int64(len(data)), Ref{Num: 2})
	require.NoError(t, err)
	assert.Equal(t, "\n<< /O (new) >>\n", string(body))

	v, err := isolate(Ref{Num: 2}, body)
	require.NoError(t, err)
	assert.Equal(t, "new", v.Key("O").RawString())

	_, err = readRawObject(bytes.NewReader(data), int64(len(data)), Ref{Num: 3})
	assert.Error(t, err)
}

func TestSecurityHandler(t *testing.T) {
	fs := memfs.New()
	data := testpdf.Build([]testpdf.Page{{}}, testpdf.Options{Encrypt: true})
	require.NoError(t, testpdf.WriteFile(fs, "doc.pdf", data))

	doc, err := Open(fs, "doc.pdf", DefaultHighlightStyle)
	require.NoError(t, err)
	defer doc.Close()

	h, err := doc.securityHandler()
	require.NoError(t, err)
	assert.Len(t, h.key, 16)
	assert.False(t, h.useAES)

	// The Info dictionary holds an encrypted /Producer.
	info := doc.trailer["Info"].(Ref)
	body, err := readRawObject(doc.file, doc.size, info)
	require.NoError(t, err)
	raw, err := isolate(info, body)
	require.NoError(t, err)
	sealed, err := h.seal(info, String("annotscan testpdf"))
	require.NoError(t, err)
	assert.Equal(t, raw.Key("Producer").RawString(), string(sealed.(String)))
}

func TestSecurityHandlerRejects(t *testing.T) {
	id := []byte("id")
	tests := []struct {
		name string
		body string
	}{
		{name: "public key filter", body: "<< /Filter /Adobe.PubSec /V 2 /R 3 >>"},
		{name: "revision 6", body: "<< /Filter /Standard /V 5 /R 6 /Length 256 >>"},
		{
			name: "wrong user password",
			body: "<< /Filter /Standard /V 2 /R 3 /Length 128 /P -4 /O <" + strings.Repeat("5a", 32) + "> /U <" + strings.Repeat("00", 32) + "> >>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := isolate(Ref{Num: 1}, []byte(tt.body))
			require.NoError(t, err)
			_, err = newSecurityHandler(v, id)
			assert.True(t, errors.Is(err, ErrUnsupportedEncryption), "got %v", err)
		})
	}
}
