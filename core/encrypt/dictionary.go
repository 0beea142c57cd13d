package encrypt

import (
	"github.com/benedoc-inc/pdfmerge/core/object"
	"github.com/benedoc-inc/pdfmerge/types"
)

// Crypt filter methods
const (
	MethodNone     = "None"
	MethodIdentity = "Identity"
	MethodRC4      = "V2"
	MethodAESV2    = "AESV2"
	MethodAESV3    = "AESV3"
)

// ParseEncryptionDictionary reads the standard security handler parameters
// from a resolved /Encrypt dictionary.
func ParseEncryptionDictionary(dict object.Dict) (*types.PDFEncryption, error) {
	enc := &types.PDFEncryption{EncryptMetadata: true}

	if f, ok := dict.GetName("Filter"); ok {
		enc.Filter = string(f)
	}
	if enc.Filter != "" && enc.Filter != "Standard" {
		return nil, types.NewPDFErrorf(types.ErrCodeUnsupportedCrypto, "security handler %s is not supported", enc.Filter)
	}
	enc.V, _ = dict.GetInt("V")
	enc.R, _ = dict.GetInt("R")
	if p, ok := dict.GetInt("P"); ok {
		enc.P = int32(p)
	}
	enc.O = stringBytes(dict.Get("O"))
	enc.U = stringBytes(dict.Get("U"))
	enc.OE = stringBytes(dict.Get("OE"))
	enc.UE = stringBytes(dict.Get("UE"))
	if b, ok := dict.Get("EncryptMetadata").(object.Bool); ok {
		enc.EncryptMetadata = bool(b)
	}

	switch enc.V {
	case 0, 1:
		enc.KeyLength = 5
		enc.StreamMethod, enc.StringMethod = MethodRC4, MethodRC4
	case 2, 3:
		enc.KeyLength = keyLengthBytes(dict, 5)
		enc.StreamMethod, enc.StringMethod = MethodRC4, MethodRC4
	case 4, 5:
		cf, _ := dict.GetDict("CF")
		enc.StreamMethod = cryptFilterMethod(cf, dict, "StmF")
		enc.StringMethod = cryptFilterMethod(cf, dict, "StrF")
		if enc.V == 5 {
			enc.KeyLength = 32
		} else {
			enc.KeyLength = 16
			if std, ok := cf.GetDict("StdCF"); ok {
				enc.KeyLength = keyLengthBytes(std, 16)
			}
		}
	default:
		return nil, types.NewPDFErrorf(types.ErrCodeUnsupportedCrypto, "encryption version %d is not supported", enc.V)
	}
	return enc, nil
}

func cryptFilterMethod(cf object.Dict, dict object.Dict, key object.Name) string {
	name, ok := dict.GetName(key)
	if !ok || name == "Identity" {
		return MethodIdentity
	}
	filter, ok := cf.GetDict(name)
	if !ok {
		return MethodIdentity
	}
	cfm, ok := filter.GetName("CFM")
	if !ok {
		return MethodNone
	}
	return string(cfm)
}

// keyLengthBytes reads /Length, which is in bits but occasionally written in bytes.
func keyLengthBytes(dict object.Dict, def int) int {
	n, ok := dict.GetInt("Length")
	if !ok || n <= 0 {
		return def
	}
	if n <= 32 {
		return n
	}
	return n / 8
}

func stringBytes(o object.Object) []byte {
	if s, ok := o.(object.String); ok {
		return []byte(s)
	}
	return nil
}
