package encrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/benedoc-inc/pdfmerge/types"
)

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// padPassword pads or truncates a password to 32 bytes with the standard padding string
func padPassword(password []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, password)
	copy(padded[n:], passwordPadding)
	return padded
}

// AuthenticateUser derives the file key for password and checks it against
// the /U entry. On success the key is stored in enc.EncryptKey.
func AuthenticateUser(password []byte, enc *types.PDFEncryption, fileID []byte) ([]byte, error) {
	var (
		key []byte
		err error
	)
	if enc.R >= 5 {
		key, err = authenticateUserV5(password, enc)
	} else {
		key = DeriveEncryptionKey(password, enc, fileID)
		var u []byte
		u, err = ComputeUValue(key, enc, fileID)
		if err == nil {
			n := 16
			if enc.R == 2 {
				n = 32
			}
			if len(enc.U) < n || !bytes.Equal(u[:n], enc.U[:n]) {
				err = types.NewPDFError(types.ErrCodeWrongPassword, "user password does not match")
			}
		}
	}
	if err != nil {
		return nil, err
	}
	enc.EncryptKey = key
	return key, nil
}

// DeriveEncryptionKey derives the file key from a user password (R2-R4)
func DeriveEncryptionKey(password []byte, enc *types.PDFEncryption, fileID []byte) []byte {
	h := md5.New()
	h.Write(padPassword(password))
	h.Write(enc.O)
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], uint32(enc.P))
	h.Write(p[:])
	h.Write(fileID)
	if enc.R >= 4 && !enc.EncryptMetadata {
		h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := h.Sum(nil)

	n := enc.KeyLength
	if n <= 0 || n > 16 {
		n = 16
	}
	if enc.R >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:n])
			key = sum[:]
		}
	}
	return key[:n]
}

// ComputeUValue computes the /U entry for a file key (R2-R4)
func ComputeUValue(key []byte, enc *types.PDFEncryption, fileID []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if enc.R == 2 {
		out := make([]byte, 32)
		c.XORKeyStream(out, passwordPadding)
		return out, nil
	}

	h := md5.New()
	h.Write(passwordPadding)
	h.Write(fileID)
	out := h.Sum(nil)
	c.XORKeyStream(out, out)
	rc4Rounds(out, key)

	result := make([]byte, 32)
	copy(result, out)
	return result, nil
}

// ComputeOValue computes the /O entry from the owner and user passwords (R2-R4)
func ComputeOValue(ownerPassword, userPassword []byte, enc *types.PDFEncryption) ([]byte, error) {
	if len(ownerPassword) == 0 {
		ownerPassword = userPassword
	}
	sum := md5.Sum(padPassword(ownerPassword))
	key := sum[:]
	n := enc.KeyLength
	if n <= 0 || n > 16 {
		n = 16
	}
	if enc.R >= 3 {
		for i := 0; i < 50; i++ {
			s := md5.Sum(key)
			key = s[:]
		}
	}
	key = key[:n]

	out := padPassword(userPassword)
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	c.XORKeyStream(out, out)
	if enc.R >= 3 {
		rc4Rounds(out, key)
	}
	return out, nil
}

// rc4Rounds applies the 19 extra RC4 passes of revision 3+, each with the
// key XORed by the round number.
func rc4Rounds(data, key []byte) {
	k := make([]byte, len(key))
	for i := 1; i <= 19; i++ {
		for j := range key {
			k[j] = key[j] ^ byte(i)
		}
		c, _ := rc4.NewCipher(k)
		c.XORKeyStream(data, data)
	}
}

// authenticateUserV5 validates password against /U and unwraps the file key
// from /UE (R5 and R6, AES-256).
func authenticateUserV5(password []byte, enc *types.PDFEncryption) ([]byte, error) {
	if len(enc.U) < 48 {
		return nil, fmt.Errorf("U value too short for revision %d: %d bytes", enc.R, len(enc.U))
	}
	if len(enc.UE) != 32 {
		return nil, fmt.Errorf("UE value must be 32 bytes, got %d", len(enc.UE))
	}
	if len(password) > 127 {
		password = password[:127]
	}
	validationSalt := enc.U[32:40]
	keySalt := enc.U[40:48]

	if !bytes.Equal(hashV5(password, validationSalt, enc.R), enc.U[:32]) {
		return nil, types.NewPDFError(types.ErrCodeWrongPassword, "user password does not match")
	}

	intermediate := hashV5(password, keySalt, enc.R)
	block, err := aes.NewCipher(intermediate)
	if err != nil {
		return nil, err
	}
	key := make([]byte, 32)
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(key, enc.UE)
	return key, nil
}

// hashV5 is the password hash of revision 5 (a single SHA-256) and
// revision 6 (the iterated SHA-2 hash of ISO 32000-2).
func hashV5(password, salt []byte, revision int) []byte {
	h := sha256.New()
	h.Write(password)
	h.Write(salt)
	k := h.Sum(nil)
	if revision < 6 {
		return k
	}

	for i := 0; ; i++ {
		k1 := make([]byte, 0, 64*(len(password)+len(k)))
		for j := 0; j < 64; j++ {
			k1 = append(k1, password...)
			k1 = append(k1, k...)
		}
		block, _ := aes.NewCipher(k[:16])
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)

		sum := 0
		for _, b := range e[:16] {
			sum += int(b)
		}
		var next hash.Hash
		switch sum % 3 {
		case 0:
			next = sha256.New()
		case 1:
			next = sha512.New384()
		default:
			next = sha512.New()
		}
		next.Write(e)
		k = next.Sum(nil)

		if i >= 63 && int(e[len(e)-1]) <= i-31 {
			break
		}
	}
	return k[:32]
}
