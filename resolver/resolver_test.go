package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	qcrypto "github.com/qudag/qudag/crypto"
	"github.com/qudag/qudag/qudagerrors"
	"github.com/qudag/qudag/store"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTestResolver(t *testing.T, clock *fakeClock) *Resolver {
	t.Helper()
	r, err := New(newFakeDHT(), store.NewLedger(store.NewMemDB()), BinaryCodec{}, nil, 1000, time.Hour, clock.now, nil)
	require.NoError(t, err)
	return r
}

func newTestKey(t *testing.T) qcrypto.SigKeyPair {
	t.Helper()
	kp, err := qcrypto.SigKeygen()
	require.NoError(t, err)
	return kp
}

func TestRegisterThenResolve(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	r := newTestResolver(t, clock)
	kp := newTestKey(t)

	rec, err := r.Register("alice.dark", []byte("addr-1"), time.Hour, kp.SecretKey.Bytes(), kp.PublicKey)
	require.NoError(t, err)
	require.True(t, rec.verify())

	addr, err := r.Resolve("1.2.3.4", "alice.dark")
	require.NoError(t, err)
	require.Equal(t, []byte("addr-1"), addr)
}

func TestResolveMissCallsDHT(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	r := newTestResolver(t, clock)
	kp := newTestKey(t)

	_, err := r.Register("bob.dark", []byte("addr-2"), time.Hour, kp.SecretKey.Bytes(), kp.PublicKey)
	require.NoError(t, err)

	// Evict from cache to force a DHT FindValue round trip.
	r.cache.Del(NameKey("bob.dark"))
	r.cache.Wait()

	addr, err := r.Resolve("1.2.3.4", "bob.dark")
	require.NoError(t, err)
	require.Equal(t, []byte("addr-2"), addr)
}

func TestResolveUnknownNameNotFound(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	r := newTestResolver(t, clock)

	_, err := r.Resolve("1.2.3.4", "nobody.dark")
	require.ErrorIs(t, err, qudagerrors.ErrNotFound)
}

func TestResolveExpiredRecord(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	r := newTestResolver(t, clock)
	kp := newTestKey(t)

	_, err := r.Register("short.dark", []byte("addr-3"), time.Second, kp.SecretKey.Bytes(), kp.PublicKey)
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Hour)
	_, err = r.Resolve("1.2.3.4", "short.dark")
	require.ErrorIs(t, err, qudagerrors.ErrExpired)
}

func TestRegisterShadowGeneratesEphemeralName(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	r := newTestResolver(t, clock)
	kp := newTestKey(t)

	rec, err := r.RegisterShadow(48*time.Hour, 24*time.Hour, []byte("addr-4"), kp.SecretKey.Bytes(), kp.PublicKey)
	require.NoError(t, err)
	require.True(t, rec.Ephemeral)
	require.Equal(t, rec.NotBefore+24*60*60, rec.NotAfter)

	addr, err := r.Resolve("1.2.3.4", rec.Name)
	require.NoError(t, err)
	require.Equal(t, []byte("addr-4"), addr)
}

func TestRevokeMakesRecordUnresolvable(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	r := newTestResolver(t, clock)
	kp := newTestKey(t)

	_, err := r.Register("carol.dark", []byte("addr-5"), time.Hour, kp.SecretKey.Bytes(), kp.PublicKey)
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Second)
	require.NoError(t, r.Revoke("carol.dark", kp.SecretKey.Bytes(), kp.PublicKey))

	_, err = r.Resolve("1.2.3.4", "carol.dark")
	require.ErrorIs(t, err, qudagerrors.ErrNotFound)
}

func TestRegisterRejectsDifferentKeyWhileActive(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	r := newTestResolver(t, clock)
	kp1 := newTestKey(t)
	kp2 := newTestKey(t)

	_, err := r.Register("dave.dark", []byte("addr-6"), time.Hour, kp1.SecretKey.Bytes(), kp1.PublicKey)
	require.NoError(t, err)

	_, err = r.Register("dave.dark", []byte("addr-7"), time.Hour, kp2.SecretKey.Bytes(), kp2.PublicKey)
	require.ErrorIs(t, err, qudagerrors.ErrConflict)
}

func TestRegisterRejectsInvalidName(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	r := newTestResolver(t, clock)
	kp := newTestKey(t)

	_, err := r.Register("Has Spaces!", []byte("addr"), time.Hour, kp.SecretKey.Bytes(), kp.PublicKey)
	require.ErrorIs(t, err, qudagerrors.ErrMalformed)
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

func TestResolveRateLimited(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	r, err := New(newFakeDHT(), store.NewLedger(store.NewMemDB()), BinaryCodec{}, denyLimiter{}, 1000, time.Hour, clock.now, nil)
	require.NoError(t, err)

	_, err = r.Resolve("1.2.3.4", "anything.dark")
	require.ErrorIs(t, err, qudagerrors.ErrRateLimited)
}

func TestOriginLimiterAllowsBurstThenBlocks(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	lim := NewOriginLimiter(2, time.Minute, clock.now)

	require.True(t, lim.Allow("1.2.3.4"))
	require.True(t, lim.Allow("1.2.3.4"))
	require.False(t, lim.Allow("1.2.3.4"))
}

func TestBinaryCodecRoundTrip(t *testing.T) {
	rec := &DarkRecord{
		Name:      "enc.dark",
		Address:   []byte("payload"),
		AuthorPK:  []byte("pk-bytes"),
		NotBefore: 100,
		NotAfter:  200,
		Ephemeral: true,
		Signature: []byte("sig-bytes"),
	}
	encoded, err := BinaryCodec{}.Encode(rec)
	require.NoError(t, err)

	got, err := BinaryCodec{}.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, rec.Name, got.Name)
	require.Equal(t, rec.Address, got.Address)
	require.Equal(t, rec.AuthorPK, got.AuthorPK)
	require.Equal(t, rec.NotBefore, got.NotBefore)
	require.Equal(t, rec.NotAfter, got.NotAfter)
	require.Equal(t, rec.Ephemeral, got.Ephemeral)
	require.Equal(t, rec.Signature, got.Signature)
}
