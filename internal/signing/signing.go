package signing

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"os"

	blst "github.com/supranational/blst/bindings/go"
	"github.com/zeebo/blake3"
)

const (
	// PublicKeySize is the size of a compressed BLS public key in bytes.
	PublicKeySize = 48

	// SignatureSize is the size of a compressed BLS signature in bytes.
	SignatureSize = 96

	// SeedSize is the size of a key seed in bytes.
	SeedSize = 32

	// addressBytes is how much of the public key hash an address keeps.
	addressBytes = 20
)

// dst is the domain separation tag for trigger signatures.
var dst = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// KeyPair holds a BLS private/public key pair.
type KeyPair struct {
	seed   []byte          // seed is kept so the key can be saved
	secret *blst.SecretKey // secret is the private key
	public *blst.P1Affine  // public is the public key
}

// GenerateKey creates a new key pair from a random seed.
func GenerateKey() (*KeyPair, error) {
	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate random seed:\n%w", err)
	}

	return KeyFromSeed(seed)
}

// KeyFromSeed creates a key pair from a deterministic seed of at least
// SeedSize bytes.
func KeyFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) < SeedSize {
		return nil, fmt.Errorf("seed must be at least %d bytes", SeedSize)
	}

	secret := blst.KeyGen(seed)
	if secret == nil {
		return nil, fmt.Errorf("failed to generate BLS key")
	}

	return &KeyPair{
		seed:   append([]byte(nil), seed...),
		secret: secret,
		public: new(blst.P1Affine).From(secret),
	}, nil
}

// LoadOrGenerate reads a key seed from path, creating and saving a new
// one if the file does not exist.
func LoadOrGenerate(path string) (*KeyPair, error) {
	seed, err := os.ReadFile(path)
	if err == nil {
		return KeyFromSeed(seed)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key:\n%w", err)
	}

	k, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, k.seed, 0600); err != nil {
		return nil, fmt.Errorf("save key:\n%w", err)
	}

	return k, nil
}

// Sign creates a signature over message.
func (k *KeyPair) Sign(message []byte) []byte {
	sig := new(blst.P2Affine).Sign(k.secret, message, dst)
	return sig.Compress()
}

// PublicKey returns the compressed public key.
func (k *KeyPair) PublicKey() []byte {
	return k.public.Compress()
}

// Address returns the registry address of this key.
func (k *KeyPair) Address() string {
	return Address(k.PublicKey())
}

// Address derives the registry address of a compressed public key: the
// base32 encoding of the first 20 bytes of its BLAKE3 hash.
func Address(publicKey []byte) string {
	h := blake3.Sum256(publicKey)
	return base32.StdEncoding.EncodeToString(h[:addressBytes])
}

// Verify checks a signature against a message and public key.
func Verify(signature, message, publicKey []byte) bool {
	if len(signature) != SignatureSize || len(publicKey) != PublicKeySize {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false
	}

	pk := new(blst.P1Affine).Uncompress(publicKey)
	if pk == nil {
		return false
	}

	return sig.Verify(true, pk, true, message, dst)
}
