package types

// PDFEncryption holds the standard security handler parameters of an
// encrypted document and, once derived, its file key.
type PDFEncryption struct {
	Filter          string
	V               int
	R               int
	KeyLength       int // in bytes
	O               []byte
	U               []byte
	OE              []byte
	UE              []byte
	P               int32
	EncryptMetadata bool
	StreamMethod    string // crypt filter method for streams: V2, AESV2, AESV3, Identity
	StringMethod    string // crypt filter method for strings
	EncryptKey      []byte
}
