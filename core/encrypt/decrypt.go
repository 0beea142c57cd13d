package encrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"fmt"

	"github.com/benedoc-inc/pdfmerge/types"
)

// DecryptData decrypts a string or stream payload of object objNum/genNum.
// forStream selects the stream crypt filter rather than the string one.
func DecryptData(data []byte, objNum, genNum int, enc *types.PDFEncryption, forStream bool) ([]byte, error) {
	method := methodFor(enc, forStream)
	if method == MethodIdentity || method == MethodNone || len(enc.EncryptKey) == 0 {
		return data, nil
	}
	key := objectKey(enc, method, objNum, genNum)

	switch method {
	case MethodRC4:
		c, err := rc4.NewCipher(key)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		return out, nil
	case MethodAESV2, MethodAESV3:
		return decryptAES(data, key)
	}
	return nil, types.NewPDFErrorf(types.ErrCodeUnsupportedCrypto, "crypt filter method %s is not supported", method)
}

// EncryptData is the inverse of DecryptData. AES output gets a random IV.
func EncryptData(data []byte, objNum, genNum int, enc *types.PDFEncryption, forStream bool) ([]byte, error) {
	method := methodFor(enc, forStream)
	if method == MethodIdentity || method == MethodNone || len(enc.EncryptKey) == 0 {
		return data, nil
	}
	key := objectKey(enc, method, objNum, genNum)

	switch method {
	case MethodRC4:
		c, err := rc4.NewCipher(key)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		return out, nil
	case MethodAESV2, MethodAESV3:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		pad := aes.BlockSize - len(data)%aes.BlockSize
		plain := make([]byte, len(data)+pad)
		copy(plain, data)
		for i := len(data); i < len(plain); i++ {
			plain[i] = byte(pad)
		}
		out := make([]byte, aes.BlockSize+len(plain))
		if _, err := rand.Read(out[:aes.BlockSize]); err != nil {
			return nil, err
		}
		cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(out[aes.BlockSize:], plain)
		return out, nil
	}
	return nil, types.NewPDFErrorf(types.ErrCodeUnsupportedCrypto, "crypt filter method %s is not supported", method)
}

func methodFor(enc *types.PDFEncryption, forStream bool) string {
	if forStream {
		return enc.StreamMethod
	}
	return enc.StringMethod
}

// objectKey derives the per-object key (Algorithm 1). AES-256 uses the file
// key directly.
func objectKey(enc *types.PDFEncryption, method string, objNum, genNum int) []byte {
	if method == MethodAESV3 {
		return enc.EncryptKey
	}
	n := min(len(enc.EncryptKey), 16)
	h := md5.New()
	h.Write(enc.EncryptKey[:n])
	h.Write([]byte{byte(objNum), byte(objNum >> 8), byte(objNum >> 16), byte(genNum), byte(genNum >> 8)})
	if method == MethodAESV2 {
		h.Write([]byte("sAlT"))
	}
	return h.Sum(nil)[:min(n+5, 16)]
}

func decryptAES(data, key []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, fmt.Errorf("aes: data shorter than one block (%d)", len(data))
	}
	iv, body := data[:aes.BlockSize], data[aes.BlockSize:]
	// Trailing garbage after the last full block is dropped.
	body = body[:len(body)-len(body)%aes.BlockSize]
	if len(body) == 0 {
		return body, nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)

	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(out) {
		return out, nil
	}
	return out[:len(out)-pad], nil
}
