package encrypt

import "github.com/benedoc-inc/pdfmerge/types"

// NewRC4Encryption prepares 128-bit RC4 (V2, R3) parameters for the given
// passwords and file ID, with the file key already derived.
func NewRC4Encryption(userPassword, ownerPassword, fileID []byte, permissions int32) (*types.PDFEncryption, error) {
	enc := &types.PDFEncryption{
		Filter:          "Standard",
		V:               2,
		R:               3,
		KeyLength:       16,
		P:               permissions,
		EncryptMetadata: true,
		StreamMethod:    MethodRC4,
		StringMethod:    MethodRC4,
	}
	o, err := ComputeOValue(ownerPassword, userPassword, enc)
	if err != nil {
		return nil, err
	}
	enc.O = o
	enc.EncryptKey = DeriveEncryptionKey(userPassword, enc, fileID)
	u, err := ComputeUValue(enc.EncryptKey, enc, fileID)
	if err != nil {
		return nil, err
	}
	enc.U = u
	return enc, nil
}
