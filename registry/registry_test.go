package registry

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nytdevansh/V-Face-sub001/cryptoutils"
	"github.com/nytdevansh/V-Face-sub001/fingerprint"
	"github.com/nytdevansh/V-Face-sub001/index"
	"github.com/nytdevansh/V-Face-sub001/interfaces"
	"github.com/nytdevansh/V-Face-sub001/ledger"
	"github.com/nytdevansh/V-Face-sub001/storage"
)

var testSeed = []byte("0123456789abcdef0123456789abcdef")

type testEnv struct {
	reg    *Registry
	store  *storage.MemoryIdentityStore
	idx    *index.CosineIndex
	chain  *ledger.MemoryChain
	cipher *cryptoutils.EmbeddingCipher
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cipher, err := cryptoutils.NewEmbeddingCipher(testSeed)
	require.NoError(t, err)

	env := &testEnv{
		store:  storage.NewMemoryIdentityStore(),
		idx:    index.NewCosineIndex(interfaces.EmbeddingDim),
		chain:  ledger.NewMemoryChain(),
		cipher: cipher,
		now:    time.Unix(1700000000, 0),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.reg = New(DefaultConfig(), env.store, env.idx, env.chain, cipher, cryptoutils.EthereumSignatureVerifier{}, log).
		WithNow(func() time.Time { return env.now })
	return env
}

// basisVec returns the unit vector along the given axis.
func basisVec(axis int) []float64 {
	vec := make([]float64, interfaces.EmbeddingDim)
	vec[axis] = 1
	return vec
}

// nearVec returns a vector highly similar to the axis basis vector
// (cosine similarity ~0.98, above the 0.85 Sybil threshold).
func nearVec(axis int) []float64 {
	vec := basisVec(axis)
	vec[(axis+1)%interfaces.EmbeddingDim] = 0.2
	return vec
}

func (env *testEnv) enroll(t *testing.T, vec []float64, publicKey string) (interfaces.Fingerprint, RegisterResult) {
	t.Helper()
	fp, err := fingerprint.Derive(vec, "")
	require.NoError(t, err)
	envelope, err := env.cipher.Encrypt(vec)
	require.NoError(t, err)
	res, err := env.reg.Register(fp.String(), publicKey, envelope)
	require.NoError(t, err)
	return fp, res
}

const testAddr = "0x0123456789abcdef0123456789abcdef01234567"

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	fp, res := env.enroll(t, basisVec(0), testAddr)

	assert.Equal(t, 0, res.ChainIndex)
	assert.Len(t, res.Commitment, 64)
	assert.Equal(t, 1, env.idx.Size())

	entries := env.chain.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, interfaces.EventRegister, entries[0].Payload.Event)
	assert.Equal(t, fp, entries[0].Payload.Fingerprint)
	assert.Equal(t, entries[0].Hash, res.Commitment)

	rec, ok, err := env.store.Get(fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testAddr, rec.PublicKey)
	assert.False(t, rec.Revoked)
	assert.NotEmpty(t, rec.EncryptedEmbedding)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	goodEnvelope, err := env.cipher.Encrypt(basisVec(0))
	require.NoError(t, err)
	fp, err := fingerprint.Derive(basisVec(0), "")
	require.NoError(t, err)

	t.Run("bad fingerprint", func(t *testing.T) {
		_, err := env.reg.Register("not-hex", testAddr, goodEnvelope)
		assert.ErrorIs(t, err, interfaces.ErrValidation)
	})

	t.Run("missing public key", func(t *testing.T) {
		_, err := env.reg.Register(fp.String(), "", goodEnvelope)
		assert.ErrorIs(t, err, interfaces.ErrValidation)
	})

	t.Run("garbage envelope", func(t *testing.T) {
		_, err := env.reg.Register(fp.String(), testAddr, "v1:zz:zz:zz")
		assert.ErrorIs(t, err, interfaces.ErrDecryption)
	})

	t.Run("wrong dimensionality", func(t *testing.T) {
		short, err := env.cipher.Encrypt([]float64{1, 2, 3})
		require.NoError(t, err)
		_, err = env.reg.Register(fp.String(), testAddr, short)
		assert.ErrorIs(t, err, interfaces.ErrInvalidDimension)
	})

	// None of the failures above may touch the ledger.
	assert.Equal(t, 0, env.chain.Length())
	assert.Equal(t, 0, env.idx.Size())
}

func TestRegisterDuplicateFingerprint(t *testing.T) {
	env := newTestEnv(t)

	fp, _ := env.enroll(t, basisVec(0), testAddr)

	envelope, err := env.cipher.Encrypt(basisVec(0))
	require.NoError(t, err)
	_, err = env.reg.Register(fp.String(), testAddr, envelope)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyRegistered)
	assert.Equal(t, 1, env.chain.Length())
}

func TestRegisterSybilRejection(t *testing.T) {
	env := newTestEnv(t)

	env.enroll(t, basisVec(0), testAddr)

	// A re-capture of the same biometric source: different fingerprint,
	// highly similar raw vector.
	near := nearVec(0)
	nearFp, err := fingerprint.Derive(near, "")
	require.NoError(t, err)
	envelope, err := env.cipher.Encrypt(near)
	require.NoError(t, err)

	_, err = env.reg.Register(nearFp.String(), testAddr, envelope)
	assert.ErrorIs(t, err, interfaces.ErrSimilarIdentityExists)

	// The rejected fingerprint is never persisted and no entry is appended.
	_, ok, err := env.store.Get(nearFp)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, env.chain.Length())
	assert.Equal(t, 1, env.idx.Size())
}

func TestRegisterConcurrentNearDuplicates(t *testing.T) {
	env := newTestEnv(t)

	// Re-captures of one biometric source: pairwise cosine similarity
	// stays near 1, but each quantizes to a distinct fingerprint.
	const attempts = 16
	type candidate struct {
		fp       interfaces.Fingerprint
		envelope string
	}
	candidates := make([]candidate, attempts)
	for i := range candidates {
		vec := basisVec(0)
		vec[1] = 0.01 * float64(i+1)
		fp, err := fingerprint.Derive(vec, "")
		require.NoError(t, err)
		envelope, err := env.cipher.Encrypt(vec)
		require.NoError(t, err)
		candidates[i] = candidate{fp: fp, envelope: envelope}
	}

	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range candidates {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.reg.Register(candidates[i].fp.String(), testAddr, candidates[i].envelope)
		}()
	}
	wg.Wait()

	// The similarity check and the writes are one critical section, so
	// exactly one registration wins regardless of interleaving.
	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, interfaces.ErrSimilarIdentityExists)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, env.chain.Length())
	assert.Equal(t, 1, env.idx.Size())
}

func TestRegisterOrthogonalVectorsCoexist(t *testing.T) {
	env := newTestEnv(t)

	_, res0 := env.enroll(t, basisVec(0), testAddr)
	_, res1 := env.enroll(t, basisVec(1), testAddr)

	assert.Equal(t, 0, res0.ChainIndex)
	assert.Equal(t, 1, res1.ChainIndex)
	assert.Equal(t, 2, env.idx.Size())
}

func TestCheck(t *testing.T) {
	env := newTestEnv(t)

	fp, res := env.enroll(t, basisVec(0), testAddr)

	got, err := env.reg.Check(fp.String())
	require.NoError(t, err)
	assert.True(t, got.Exists)
	assert.False(t, got.Revoked)
	assert.Equal(t, testAddr, got.PublicKey)
	assert.Equal(t, res.ChainIndex, got.ChainIndex)
	assert.Equal(t, env.now.UTC(), got.CreatedAt)

	missing, err := env.reg.Check("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	assert.False(t, missing.Exists)

	_, err = env.reg.Check("short")
	assert.ErrorIs(t, err, interfaces.ErrValidation)
}

func signedChallenge(t *testing.T, env *testEnv, fp interfaces.Fingerprint, ts int64) challengePair {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	message, err := json.Marshal(map[string]any{
		"action":      "revoke",
		"fingerprint": fp.String(),
		"timestamp":   ts,
		"nonce":       "nonce-1",
	})
	require.NoError(t, err)
	sig, err := cryptoutils.SignChallenge(key, message)
	require.NoError(t, err)

	return challengePair{addr: cryptoutils.AddressOf(key), message: message, sig: sig}
}

type challengePair struct {
	addr    string
	message []byte
	sig     []byte
}

func TestRevoke(t *testing.T) {
	env := newTestEnv(t)

	vec := basisVec(0)
	fp, err := fingerprint.Derive(vec, "")
	require.NoError(t, err)
	ch := signedChallenge(t, env, fp, env.now.Unix())

	envelope, err := env.cipher.Encrypt(vec)
	require.NoError(t, err)
	_, err = env.reg.Register(fp.String(), ch.addr, envelope)
	require.NoError(t, err)

	require.NoError(t, env.reg.Revoke(fp.String(), ch.sig, ch.message))

	got, err := env.reg.Check(fp.String())
	require.NoError(t, err)
	assert.True(t, got.Exists)
	assert.True(t, got.Revoked)

	// Out of the active search space, but the audit copy stays stored.
	assert.Equal(t, 0, env.idx.Size())
	rec, ok, err := env.store.Get(fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, rec.EncryptedEmbedding)

	entries := env.chain.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, interfaces.EventRevoke, entries[1].Payload.Event)

	// Revocation is terminal: neither revoking again nor re-registering works.
	assert.ErrorIs(t, env.reg.Revoke(fp.String(), ch.sig, ch.message), interfaces.ErrAlreadyRevoked)
	_, err = env.reg.Register(fp.String(), ch.addr, envelope)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyRevoked)
}

func TestRevokeRejections(t *testing.T) {
	env := newTestEnv(t)

	vec := basisVec(0)
	fp, err := fingerprint.Derive(vec, "")
	require.NoError(t, err)
	ch := signedChallenge(t, env, fp, env.now.Unix())

	t.Run("unknown identity", func(t *testing.T) {
		assert.ErrorIs(t, env.reg.Revoke(fp.String(), ch.sig, ch.message), interfaces.ErrUnknownIdentity)
	})

	envelope, err := env.cipher.Encrypt(vec)
	require.NoError(t, err)
	_, err = env.reg.Register(fp.String(), ch.addr, envelope)
	require.NoError(t, err)

	t.Run("stale challenge", func(t *testing.T) {
		stale := signedChallenge(t, env, fp, env.now.Add(-6*time.Minute).Unix())
		assert.ErrorIs(t, env.reg.Revoke(fp.String(), stale.sig, stale.message), interfaces.ErrStaleChallenge)
	})

	t.Run("future-dated challenge", func(t *testing.T) {
		future := signedChallenge(t, env, fp, env.now.Add(6*time.Minute).Unix())
		assert.ErrorIs(t, env.reg.Revoke(fp.String(), future.sig, future.message), interfaces.ErrStaleChallenge)
	})

	t.Run("wrong signer", func(t *testing.T) {
		other := signedChallenge(t, env, fp, env.now.Unix())
		assert.ErrorIs(t, env.reg.Revoke(fp.String(), other.sig, other.message), interfaces.ErrInvalidSignature)
	})

	t.Run("challenge for another fingerprint", func(t *testing.T) {
		otherFp, err := fingerprint.Derive(basisVec(1), "")
		require.NoError(t, err)
		other := signedChallenge(t, env, otherFp, env.now.Unix())
		assert.ErrorIs(t, env.reg.Revoke(fp.String(), other.sig, other.message), interfaces.ErrValidation)
	})

	t.Run("unparseable challenge", func(t *testing.T) {
		assert.ErrorIs(t, env.reg.Revoke(fp.String(), ch.sig, []byte("{")), interfaces.ErrValidation)
	})

	// Identity remains active after all the rejected attempts.
	got, err := env.reg.Check(fp.String())
	require.NoError(t, err)
	assert.False(t, got.Revoked)
	assert.Equal(t, 1, env.chain.Length())
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)

	fp0, _ := env.enroll(t, basisVec(0), testAddr)
	env.enroll(t, basisVec(1), testAddr)

	probe, err := env.cipher.Encrypt(nearVec(0))
	require.NoError(t, err)

	matches, err := env.reg.Search(probe, 0.85)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, fp0, matches[0].Fingerprint)
	assert.Greater(t, matches[0].Score, 0.85)

	// A low threshold surfaces both, best first.
	matches, err = env.reg.Search(probe, 0.01)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, fp0, matches[0].Fingerprint)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestSearchValidation(t *testing.T) {
	env := newTestEnv(t)

	probe, err := env.cipher.Encrypt(basisVec(0))
	require.NoError(t, err)

	for _, threshold := range []float64{0, -0.5, 1.01} {
		_, err := env.reg.Search(probe, threshold)
		assert.ErrorIs(t, err, interfaces.ErrValidation)
	}

	_, err = env.reg.Search("not-an-envelope", 0.9)
	assert.ErrorIs(t, err, interfaces.ErrDecryption)
}

func TestIdentityStatus(t *testing.T) {
	env := newTestEnv(t)

	fp, _ := env.enroll(t, basisVec(0), testAddr)

	exists, revoked, err := env.reg.IdentityStatus(fp)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.False(t, revoked)

	exists, _, err = env.reg.IdentityStatus("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRebuildIndex(t *testing.T) {
	env := newTestEnv(t)

	vec := basisVec(0)
	fp, err := fingerprint.Derive(vec, "")
	require.NoError(t, err)
	ch := signedChallenge(t, env, fp, env.now.Unix())
	envelope, err := env.cipher.Encrypt(vec)
	require.NoError(t, err)
	_, err = env.reg.Register(fp.String(), ch.addr, envelope)
	require.NoError(t, err)
	env.enroll(t, basisVec(1), testAddr)
	require.NoError(t, env.reg.Revoke(fp.String(), ch.sig, ch.message))

	// Fresh index fed from the same store: only the active identity returns.
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	freshIdx := index.NewCosineIndex(interfaces.EmbeddingDim)
	rebuilt := New(DefaultConfig(), env.store, freshIdx, env.chain, env.cipher, cryptoutils.EthereumSignatureVerifier{}, log)
	require.NoError(t, rebuilt.RebuildIndex())

	assert.Equal(t, 1, freshIdx.Size())

	probe, err := env.cipher.Encrypt(basisVec(0))
	require.NoError(t, err)
	matches, err := rebuilt.Search(probe, 0.5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
