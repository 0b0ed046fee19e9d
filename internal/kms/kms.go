package kms

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	stderr "errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/pkg/errors"

	"github.com/polygonid/verifier-node/internal/log"
)

// KMSType represents the KMS interface
// revive:disable-next-line
type KMSType interface {
	CreateKey(kt KeyType, identity *w3c.DID) (KeyID, error)
	PublicKey(keyID KeyID) ([]byte, error)
	Sign(ctx context.Context, keyID KeyID, data []byte) ([]byte, error)
	KeysByIdentity(ctx context.Context, identity w3c.DID) ([]KeyID, error)
	LinkToIdentity(ctx context.Context, keyID KeyID, identity w3c.DID) (KeyID, error)
}

// KeyType describes the type of Key
type KeyType string

// List of supported key types
const (
	KeyTypeBabyJubJub KeyType = "BJJ"
	KeyTypeEthereum   KeyType = "ETH"
)

var (
	// ErrUnknownKeyType returns when no scheme is registered for the key type
	ErrUnknownKeyType = stderr.New("unknown key type")
	// ErrIncorrectKeyType returns when the key can not be used for the operation
	ErrIncorrectKeyType = stderr.New("incorrect key type")
	// ErrKeyTypeConflict raises when a scheme is registered twice
	ErrKeyTypeConflict = stderr.New("key type already registered")
	// ErrKeyNotFound is returned when the key material is not in the store
	ErrKeyNotFound = stderr.New("key not found")
)

// KeyID is a key unique identifier.
// Unbound keys are TYPE:PUBKEY and keys linked to an identity are DID/TYPE:PUBKEY.
type KeyID struct {
	Type KeyType
	ID   string
}

type entry struct {
	identity string
	priv     []byte
}

// KMS keeps private keys in process memory. They do not survive a restart.
type KMS struct {
	schemes map[KeyType]Scheme

	mu   sync.RWMutex
	keys map[string]entry
}

// NewKMS returns an empty KMS. Schemes have to be registered before creating keys.
func NewKMS() *KMS {
	return &KMS{
		schemes: make(map[KeyType]Scheme),
		keys:    make(map[string]entry),
	}
}

// Open returns a KMS able to handle BabyJubJub and Ethereum keys
func Open() (*KMS, error) {
	k := NewKMS()
	if err := k.Register(KeyTypeBabyJubJub, BabyJubJub{}); err != nil {
		return nil, fmt.Errorf("cannot register BabyJubJub scheme: %w", err)
	}
	if err := k.Register(KeyTypeEthereum, Ethereum{}); err != nil {
		return nil, fmt.Errorf("cannot register Ethereum scheme: %w", err)
	}
	return k, nil
}

// Register adds the scheme used for keys of type kt. It is not safe to call it once the KMS is in use.
func (k *KMS) Register(kt KeyType, s Scheme) error {
	if _, ok := k.schemes[kt]; ok {
		return errors.WithStack(ErrKeyTypeConflict)
	}
	k.schemes[kt] = s
	return nil
}

// CreateKey creates a random key of type kt. The key is bound to identity when it is not nil.
func (k *KMS) CreateKey(kt KeyType, identity *w3c.DID) (KeyID, error) {
	s, ok := k.schemes[kt]
	if !ok {
		return KeyID{}, errors.WithStack(ErrUnknownKeyType)
	}
	priv, err := s.Generate()
	if err != nil {
		return KeyID{}, err
	}
	return k.store(kt, identity, priv)
}

// ImportETHKey stores a hex encoded ethereum private key. The key is not bound to any identity.
func (k *KMS) ImportETHKey(ctx context.Context, hexKey string) (KeyID, error) {
	if _, ok := k.schemes[KeyTypeEthereum]; !ok {
		return KeyID{}, errors.WithStack(ErrUnknownKeyType)
	}
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return KeyID{}, err
	}
	keyID, err := k.store(KeyTypeEthereum, nil, crypto.FromECDSA(pk))
	if err != nil {
		return KeyID{}, err
	}
	log.Debug(ctx, "ethereum key imported", "address", crypto.PubkeyToAddress(pk.PublicKey).Hex())
	return keyID, nil
}

// PublicKey returns the bytes of the public key of keyID
func (k *KMS) PublicKey(keyID KeyID) ([]byte, error) {
	s, e, err := k.lookup(keyID)
	if err != nil {
		return nil, err
	}
	return s.PublicKey(e.priv)
}

// Sign signs digest with the private key of keyID
func (k *KMS) Sign(ctx context.Context, keyID KeyID, data []byte) ([]byte, error) {
	s, e, err := k.lookup(keyID)
	if err != nil {
		log.Error(ctx, "cannot get private key", "err", err, "keyID", keyID.ID)
		return nil, err
	}
	return s.Sign(e.priv, data)
}

// KeysByIdentity lists the keys bound to identity sorted by ID
func (k *KMS) KeysByIdentity(_ context.Context, identity w3c.DID) ([]KeyID, error) {
	did := identity.String()
	k.mu.RLock()
	defer k.mu.RUnlock()
	keys := make([]KeyID, 0)
	for id, e := range k.keys {
		if e.identity == did {
			keys = append(keys, KeyID{Type: keyType(id), ID: id})
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys, nil
}

// LinkToIdentity binds an unbound key to identity and returns its new KeyID
func (k *KMS) LinkToIdentity(_ context.Context, keyID KeyID, identity w3c.DID) (KeyID, error) {
	if _, ok := k.schemes[keyID.Type]; !ok {
		return keyID, errors.WithStack(ErrUnknownKeyType)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.keys[keyID.ID]
	if !ok || e.identity != "" {
		return keyID, ErrKeyNotFound
	}
	delete(k.keys, keyID.ID)
	linked := KeyID{Type: keyID.Type, ID: keyPath(&identity, keyID.Type, keyID.ID)}
	k.keys[linked.ID] = entry{identity: identity.String(), priv: e.priv}
	return linked, nil
}

// PrivateKeyECDSA returns the ethereum private key of keyID
func (k *KMS) PrivateKeyECDSA(_ context.Context, keyID KeyID) (*ecdsa.PrivateKey, error) {
	if keyID.Type != KeyTypeEthereum {
		return nil, errors.WithStack(ErrIncorrectKeyType)
	}
	_, e, err := k.lookup(keyID)
	if err != nil {
		return nil, err
	}
	pk, err := crypto.ToECDSA(e.priv)
	return pk, errors.WithStack(err)
}

func (k *KMS) store(kt KeyType, identity *w3c.DID, priv []byte) (KeyID, error) {
	pub, err := k.schemes[kt].PublicKey(priv)
	if err != nil {
		return KeyID{}, err
	}
	keyID := KeyID{Type: kt, ID: keyPath(identity, kt, hex.EncodeToString(pub))}
	e := entry{priv: priv}
	if identity != nil {
		e.identity = identity.String()
	}
	k.mu.Lock()
	k.keys[keyID.ID] = e
	k.mu.Unlock()
	return keyID, nil
}

func (k *KMS) lookup(keyID KeyID) (Scheme, entry, error) {
	s, ok := k.schemes[keyID.Type]
	if !ok {
		return nil, entry{}, errors.WithStack(ErrUnknownKeyType)
	}
	if keyType(keyID.ID) != keyID.Type {
		return nil, entry{}, errors.WithStack(ErrIncorrectKeyType)
	}
	k.mu.RLock()
	e, ok := k.keys[keyID.ID]
	k.mu.RUnlock()
	if !ok {
		return nil, entry{}, ErrKeyNotFound
	}
	return s, e, nil
}

// keyPath builds the ID of a key. The type prefix is added unless key already carries it.
func keyPath(identity *w3c.DID, kt KeyType, key string) string {
	if !strings.HasPrefix(key, string(kt)+":") {
		key = string(kt) + ":" + key
	}
	if identity == nil {
		return key
	}
	return identity.String() + "/" + key
}

func keyType(id string) KeyType {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	t, _, _ := strings.Cut(id, ":")
	return KeyType(t)
}
