package pdfdoc

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"errors"
	"fmt"
	"io"
	"regexp"

	"rsc.io/pdf"
)

// ErrUnsupportedEncryption is returned by SaveIncremental when the security
// handler of an encrypted document cannot be reproduced for writing.
var ErrUnsupportedEncryption = errors.New("unsupported encryption")

var passwordPad = []byte{
	0x28, 0xbf, 0x4e, 0x5e, 0x4e, 0x75, 0x8a, 0x41, 0x64, 0x00, 0x4e, 0x56, 0xff, 0xfa, 0x01, 0x08,
	0x2e, 0x2e, 0x00, 0xb6, 0xd0, 0x68, 0x3e, 0x80, 0x2f, 0x0c, 0xa9, 0xfe, 0x64, 0x53, 0x69, 0x7a,
}

// securityHandler encrypts the objects of an incremental update with the
// Standard security handler of the document, opened with the empty user
// password.
type securityHandler struct {
	key    []byte
	useAES bool
}

func newSecurityHandler(enc pdf.Value, id []byte) (*securityHandler, error) {
	if enc.Kind() != pdf.Dict {
		return nil, fmt.Errorf("%w: /Encrypt is not a dictionary", ErrUnsupportedEncryption)
	}
	if f := enc.Key("Filter").Name(); f != "Standard" {
		return nil, fmt.Errorf("%w: filter %q", ErrUnsupportedEncryption, f)
	}
	n := enc.Key("Length").Int64()
	if n == 0 {
		n = 40
	}
	v := enc.Key("V").Int64()
	r := enc.Key("R").Int64()
	o := []byte(enc.Key("O").RawString())
	u := []byte(enc.Key("U").RawString())
	if n%8 != 0 || n < 40 || n > 128 || r < 2 || r > 4 || len(o) != 32 || len(u) != 32 {
		return nil, fmt.Errorf("%w: V=%d R=%d Length=%d", ErrUnsupportedEncryption, v, r, n)
	}
	if v == 4 && enc.Key("CF").Key(enc.Key("StrF").Name()).Key("CFM").Name() != "AESV2" {
		return nil, fmt.Errorf("%w: V=4 without AESV2", ErrUnsupportedEncryption)
	}
	p := uint32(enc.Key("P").Int64())

	h := md5.New()
	h.Write(passwordPad)
	h.Write(o)
	h.Write([]byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)})
	h.Write(id)
	key := h.Sum(nil)
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:n/8])
			key = sum[:]
		}
		key = key[:n/8]
	} else {
		key = key[:5]
	}

	if !bytes.HasPrefix(u, userCheck(key, r, id)) {
		return nil, fmt.Errorf("%w: empty user password does not match /U", ErrUnsupportedEncryption)
	}
	return &securityHandler{key: key, useAES: v == 4}, nil
}

// userCheck computes the /U value for key, which is a prefix of the stored
// one for revisions 3 and 4.
func userCheck(key []byte, r int64, id []byte) []byte {
	if r == 2 {
		out := make([]byte, 32)
		c, _ := rc4.NewCipher(key)
		c.XORKeyStream(out, passwordPad)
		return out
	}
	sum := md5.Sum(append(append([]byte{}, passwordPad...), id...))
	out := sum[:]
	k := make([]byte, len(key))
	for i := 0; i <= 19; i++ {
		for j := range k {
			k[j] = key[j] ^ byte(i)
		}
		c, _ := rc4.NewCipher(k)
		c.XORKeyStream(out, out)
	}
	return out
}

// objectKey derives the key of one object. rsc.io/pdf decrypts strings with
// the untruncated digest, so strings it decoded are sealed with the same key
// to get their original bytes back; new streams use the key length of the
// standard, min(len(key)+5, 16). Both agree for 128-bit keys.
func (s *securityHandler) objectKey(ref Ref, truncate bool) []byte {
	h := md5.New()
	h.Write(s.key)
	h.Write([]byte{byte(ref.Num), byte(ref.Num >> 8), byte(ref.Num >> 16), byte(ref.Gen), byte(ref.Gen >> 8)})
	if s.useAES {
		h.Write([]byte("sAlT"))
	}
	key := h.Sum(nil)
	if n := len(s.key) + 5; truncate && n < len(key) {
		key = key[:n]
	}
	return key
}

func (s *securityHandler) encrypt(key, data []byte) ([]byte, error) {
	if !s.useAES {
		c, err := rc4.NewCipher(key)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		return out, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	pad := aes.BlockSize - len(data)%aes.BlockSize
	plain := append(append([]byte{}, data...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	out := make([]byte, aes.BlockSize+len(plain))
	if _, err := io.ReadFull(rand.Reader, out[:aes.BlockSize]); err != nil {
		return nil, err
	}
	cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(out[aes.BlockSize:], plain)
	return out, nil
}

// seal returns a copy of obj, the content of object ref, with every string
// and stream encrypted.
func (s *securityHandler) seal(ref Ref, obj Object) (Object, error) {
	switch x := obj.(type) {
	case String:
		data, err := s.encrypt(s.objectKey(ref, false), x)
		if err != nil {
			return nil, err
		}
		return String(data), nil
	case Array:
		out := make(Array, len(x))
		for i, elem := range x {
			v, err := s.seal(ref, elem)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case Dict:
		out := make(Dict, len(x))
		for k, elem := range x {
			v, err := s.seal(ref, elem)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case Stream:
		dict, err := s.seal(ref, x.Dict)
		if err != nil {
			return nil, err
		}
		data, err := s.encrypt(s.objectKey(ref, true), x.Data)
		if err != nil {
			return nil, err
		}
		return Stream{Dict: dict.(Dict), Data: data}, nil
	}
	return obj, nil
}

// securityHandler reads the encryption dictionary of d. An indirect one is
// read from the raw file: the reader would decrypt its /O and /U strings.
func (d *Document) securityHandler() (*securityHandler, error) {
	var id []byte
	if ids, ok := d.trailer["ID"].(Array); ok && len(ids) > 0 {
		if first, ok := ids[0].(String); ok {
			id = first
		}
	}
	if id == nil {
		return nil, fmt.Errorf("%w: trailer has no /ID", ErrUnsupportedEncryption)
	}

	ref, ok := d.trailer["Encrypt"].(Ref)
	if !ok {
		return newSecurityHandler(d.reader.Trailer().Key("Encrypt"), id)
	}
	body, err := readRawObject(d.file, d.size, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read encryption dictionary: %w", err)
	}
	enc, err := isolate(ref, body)
	if err != nil {
		return nil, fmt.Errorf("failed to read encryption dictionary: %w", err)
	}
	return newSecurityHandler(enc, id)
}

// readRawObject returns the bytes between "num gen obj" and "endobj" of the
// last definition of ref in the file.
func readRawObject(r io.ReaderAt, size int64, ref Ref) ([]byte, error) {
	data := make([]byte, size)
	if _, err := r.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, err
	}
	header := regexp.MustCompile(fmt.Sprintf(`(?:^|[\x00\t\n\f\r ])%d[\x00\t\n\f\r ]+%d[\x00\t\n\f\r ]+obj`, ref.Num, ref.Gen))
	locs := header.FindAllIndex(data, -1)
	if len(locs) == 0 {
		return nil, fmt.Errorf("object %s not found", ref)
	}
	start := locs[len(locs)-1][1]
	end := bytes.Index(data[start:], []byte("endobj"))
	if end < 0 {
		return nil, fmt.Errorf("object %s has no endobj", ref)
	}
	return data[start : start+end], nil
}

// isolate parses body as the only object of an unencrypted file, so its
// strings are returned exactly as stored.
func isolate(ref Ref, body []byte) (v pdf.Value, err error) {
	defer recoverMalformed(&err)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offset := buf.Len()
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	buf.Write(body)
	buf.WriteString("\nendobj\n")
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 1\n0000000000 65535 f\r\n%d 1\n%010d %05d n\r\n", ref.Num, offset, ref.Gen)
	fmt.Fprintf(&buf, "trailer\n<</Size %d /Root %s>>\nstartxref\n%d\n%%%%EOF\n", ref.Num+1, ref, xref)

	r, err := pdf.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return pdf.Value{}, err
	}
	return r.Trailer().Key("Root"), nil
}
