package key

// Keypair is a Curve25519 private key together with its derived public key.
type Keypair struct {
	privateKey Key
	publicKey  Key
}

func GenerateKeypair() (*Keypair, error) {
	privateKey, err := GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return NewKeypair(privateKey), nil
}

func NewKeypair(privateKey Key) *Keypair {
	return &Keypair{
		privateKey: privateKey,
		publicKey:  PublicKey(privateKey),
	}
}

func ParseKeypair(privateKey string) (*Keypair, error) {
	k, err := FromBase64(privateKey)
	if err != nil {
		return nil, err
	}
	return NewKeypair(k), nil
}

func (kp *Keypair) PrivateKey() Key {
	return kp.privateKey
}

func (kp *Keypair) PublicKey() Key {
	return kp.publicKey
}

func (kp *Keypair) Equal(other *Keypair) bool {
	if kp == nil || other == nil {
		return kp == other
	}
	return kp.privateKey.Equal(other.privateKey)
}
