// Package resolver implements the Dark Resolver (spec.md §4.8): a
// signed name -> address directory published over a DHT, with a local
// LRU read cache and a per-origin query rate limiter. Grounded on the
// vertex package's sign/verify-over-preimage shape (vertex/vertex.go)
// generalized from a DAG vertex to a DarkRecord, and on the teacher's
// qzmq session's "one real implementation behind the interface" style
// for the cache/limiter collaborators.
package resolver

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	qcrypto "github.com/qudag/qudag/crypto"
	"github.com/qudag/qudag/log"
	"github.com/qudag/qudag/qudagerrors"
	"github.com/qudag/qudag/store"
)

// RecordKey is the DHT lookup key for a name: hash(name) (spec.md §4.8
// register/resolve).
type RecordKey = [qcrypto.HashSize]byte

// DarkRecord is the signed value published under hash(name).
type DarkRecord struct {
	Name      string
	Address   []byte // opaque routing address (e.g. a circuit rendezvous token)
	AuthorPK  []byte
	NotBefore uint64 // unix seconds; registration/republish time
	NotAfter  uint64 // unix seconds; validity window end
	Ephemeral bool   // true for register_shadow records
	Revoked   bool
	Signature []byte
}

func (r *DarkRecord) preimage() []byte {
	buf := make([]byte, 0, len(r.Name)+len(r.Address)+len(r.AuthorPK)+8+8+2)
	buf = append(buf, byte(len(r.Name)))
	buf = append(buf, r.Name...)
	buf = appendU64(buf, uint64(len(r.Address)))
	buf = append(buf, r.Address...)
	buf = appendU64(buf, r.NotBefore)
	buf = appendU64(buf, r.NotAfter)
	if r.Ephemeral {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	if r.Revoked {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return append(buf, b[:]...)
}

// sign computes r.Signature over r's preimage under authorSK.
func (r *DarkRecord) sign(authorSK []byte) error {
	sig, err := qcrypto.SigSign(authorSK, r.preimage())
	if err != nil {
		return fmt.Errorf("resolver: sign record: %w", err)
	}
	r.Signature = sig
	return nil
}

// verify checks r's signature against its own stated AuthorPK (I2's
// sibling rule for dark records: a record only ever speaks for the key
// embedded in it).
func (r *DarkRecord) verify() bool {
	return qcrypto.SigVerify(r.AuthorPK, r.preimage(), r.Signature)
}

// NameKey computes the DHT lookup key for name.
func NameKey(name string) RecordKey {
	return qcrypto.Hash([]byte(name))
}

// DHT is the distributed lookup the resolver publishes to and queries.
// The coordinator wires a real Kademlia-style transport; tests use an
// in-memory fake.
type DHT interface {
	Publish(key RecordKey, recordBytes []byte) error
	FindValue(key RecordKey) ([]byte, bool, error)
}

// RateLimiter caps queries per origin over a rolling window (spec.md
// §4.8 "Rate limiting"). Backed by cockroachdb/tokenbucket in
// production; tests use a fake.
type RateLimiter interface {
	// Allow reports whether origin may issue one more query now.
	Allow(origin string) bool
}

// Clock is injected so tests control validity-window and TTL checks
// without sleeping.
type Clock func() time.Time

// Codec marshals/unmarshals a DarkRecord to/from the bytes the DHT and
// Ledger store. Kept pluggable rather than hard-coded to one wire
// format, mirroring vertex.Encode/Decode's separation from Vertex.
type Codec interface {
	Encode(*DarkRecord) ([]byte, error)
	Decode([]byte) (*DarkRecord, error)
}

// Resolver implements register/resolve/register_shadow/revoke.
type Resolver struct {
	dht     DHT
	ledger  *store.Ledger
	codec   Codec
	limiter RateLimiter
	cache   *ristretto.Cache[RecordKey, *DarkRecord]
	cacheTTL time.Duration
	now     Clock
	log     log.Logger
}

// New builds a Resolver. cacheSize is the LRU's max entry count
// (spec.md default 10,000); cacheTTL is the default 1h freshness
// window. A nil limiter disables rate limiting (e.g. for an
// origin-trusted local caller).
func New(dht DHT, ledger *store.Ledger, codec Codec, limiter RateLimiter, cacheSize int64, cacheTTL time.Duration, now Clock, logger log.Logger) (*Resolver, error) {
	if logger == nil {
		logger = log.New("resolver")
	}
	if now == nil {
		now = time.Now
	}
	cache, err := ristretto.NewCache(&ristretto.Config[RecordKey, *DarkRecord]{
		NumCounters: cacheSize * 10,
		MaxCost:     cacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("resolver: new cache: %w", err)
	}
	return &Resolver{
		dht:      dht,
		ledger:   ledger,
		codec:    codec,
		limiter:  limiter,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      now,
		log:      logger,
	}, nil
}

// Register validates name, signs a fresh DarkRecord binding name to
// address for validity, persists it locally, and publishes it to the
// DHT under hash(name) (spec.md §4.8 register).
func (r *Resolver) Register(name string, address []byte, validity time.Duration, authorSK, authorPK []byte) (*DarkRecord, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	now := uint64(r.now().Unix())
	rec := &DarkRecord{
		Name:      name,
		Address:   address,
		AuthorPK:  authorPK,
		NotBefore: now,
		NotAfter:  now + uint64(validity.Seconds()),
	}
	if err := rec.sign(authorSK); err != nil {
		return nil, err
	}
	if err := r.publish(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RegisterShadow generates a random shadow-<hex>.dark name and
// publishes an ephemeral record valid for ttl, capped at maxTTL (a
// non-positive ttl also gets maxTTL); config.ShadowMaxTTL defaults to
// 24h (spec.md §4.8 register_shadow).
func (r *Resolver) RegisterShadow(ttl time.Duration, maxTTL time.Duration, address, authorSK, authorPK []byte) (*DarkRecord, error) {
	if ttl <= 0 || ttl > maxTTL {
		ttl = maxTTL
	}
	var suffix [16]byte
	if err := qcrypto.RNG(suffix[:]); err != nil {
		return nil, fmt.Errorf("resolver: generate shadow name: %w", err)
	}
	name := fmt.Sprintf("shadow-%x.dark", suffix)

	now := uint64(r.now().Unix())
	rec := &DarkRecord{
		Name:      name,
		Address:   address,
		AuthorPK:  authorPK,
		NotBefore: now,
		NotAfter:  now + uint64(ttl.Seconds()),
		Ephemeral: true,
	}
	if err := rec.sign(authorSK); err != nil {
		return nil, err
	}
	if err := r.publish(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// publish applies the I8 conflict rule against the owned record we
// already hold (if any) for this name, then persists and publishes.
func (r *Resolver) publish(rec *DarkRecord) error {
	existing, err := r.ownedRecord(rec.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		if string(existing.AuthorPK) == string(rec.AuthorPK) {
			if rec.NotBefore <= existing.NotBefore {
				return fmt.Errorf("%w: not_before %d does not supersede existing %d", qudagerrors.ErrConflict, rec.NotBefore, existing.NotBefore)
			}
		} else if r.now().Unix() < int64(existing.NotAfter) && !existing.Revoked {
			// A different key still holds a valid, non-revoked record for
			// this name: first-registered-still-valid wins (I8).
			return fmt.Errorf("%w: name %q already held by another key", qudagerrors.ErrConflict, rec.Name)
		}
	}

	encoded, err := r.codec.Encode(rec)
	if err != nil {
		return err
	}
	if err := r.ledger.PutDarkRecord(rec.Name, encoded); err != nil {
		return fmt.Errorf("resolver: persist record: %w", err)
	}
	if err := r.dht.Publish(NameKey(rec.Name), encoded); err != nil {
		return fmt.Errorf("resolver: publish record: %w", err)
	}
	r.cache.Set(NameKey(rec.Name), rec, 1)
	r.cache.Wait()
	return nil
}

func (r *Resolver) ownedRecord(name string) (*DarkRecord, error) {
	raw, err := r.ledger.DarkRecord(name)
	if err != nil {
		return nil, fmt.Errorf("resolver: read owned record: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return r.codec.Decode(raw)
}

// Resolve looks up name's current address: cache first, then a DHT
// FindValue on miss, verifying the returned record's signature and
// validity window before caching and returning it (spec.md §4.8
// resolve).
func (r *Resolver) Resolve(origin, name string) ([]byte, error) {
	if r.limiter != nil && !r.limiter.Allow(origin) {
		return nil, qudagerrors.ErrRateLimited
	}

	key := NameKey(name)
	if rec, ok := r.cache.Get(key); ok {
		return r.checkFresh(rec)
	}

	raw, found, err := r.dht.FindValue(key)
	if err != nil {
		return nil, fmt.Errorf("resolver: find value: %w", err)
	}
	if !found {
		return nil, qudagerrors.ErrNotFound
	}
	rec, err := r.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", qudagerrors.ErrMalformed, err)
	}
	if rec.Name != name {
		return nil, fmt.Errorf("%w: record name %q does not match query %q", qudagerrors.ErrMalformed, rec.Name, name)
	}
	if !rec.verify() {
		return nil, qudagerrors.ErrUnauthenticated
	}

	r.cache.SetWithTTL(key, rec, 1, r.cacheTTL)
	r.cache.Wait()
	return r.checkFresh(rec)
}

func (r *Resolver) checkFresh(rec *DarkRecord) ([]byte, error) {
	if rec.Revoked {
		return nil, qudagerrors.ErrNotFound
	}
	now := uint64(r.now().Unix())
	if now < rec.NotBefore || now > rec.NotAfter {
		return nil, qudagerrors.ErrExpired
	}
	return rec.Address, nil
}

// Revoke publishes a revocation of name signed by authorSK, honored by
// resolvers as strictly newer than the active record (spec.md §4.8
// revoke). authorSK must correspond to the key that registered name.
func (r *Resolver) Revoke(name string, authorSK, authorPK []byte) error {
	existing, err := r.ownedRecord(name)
	if err != nil {
		return err
	}
	if existing == nil {
		return qudagerrors.ErrNotFound
	}

	revocation := &DarkRecord{
		Name:      name,
		Address:   existing.Address,
		AuthorPK:  authorPK,
		NotBefore: existing.NotBefore + 1,
		NotAfter:  existing.NotAfter,
		Ephemeral: existing.Ephemeral,
		Revoked:   true,
	}
	if err := revocation.sign(authorSK); err != nil {
		return err
	}

	encoded, err := r.codec.Encode(revocation)
	if err != nil {
		return err
	}
	if err := r.ledger.PutDarkRecord(name, encoded); err != nil {
		return fmt.Errorf("resolver: persist revocation: %w", err)
	}
	if err := r.dht.Publish(NameKey(name), encoded); err != nil {
		return fmt.Errorf("resolver: publish revocation: %w", err)
	}
	r.cache.Set(NameKey(name), revocation, 1)
	r.cache.Wait()
	if err := r.ledger.DeleteDarkRecord(name); err != nil {
		return fmt.Errorf("resolver: delete owned record: %w", err)
	}
	return nil
}

// nameSyntax is spec.md §6.3's normative name regex: dot-separated
// labels of lowercase alphanumerics and internal hyphens (no leading or
// trailing hyphen per label), terminated by a .dark or .shadow suffix.
var nameSyntax = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*\.(dark|shadow)$`)

func validateName(name string) error {
	if name == "" || len(name) > 253 {
		return fmt.Errorf("%w: name length %d invalid", qudagerrors.ErrMalformed, len(name))
	}
	if !nameSyntax.MatchString(name) {
		return fmt.Errorf("%w: name %q does not match the required .dark/.shadow syntax", qudagerrors.ErrMalformed, name)
	}
	if strings.HasSuffix(name, ".shadow") && !strings.HasPrefix(name, "shadow-") {
		return fmt.Errorf("%w: shadow name %q must begin with shadow-", qudagerrors.ErrMalformed, name)
	}
	return nil
}
