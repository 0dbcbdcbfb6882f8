package middleware

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"license-authority/pkg/accesscontrol"
	"license-authority/pkg/errutil"
	"license-authority/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool `json:"success"`
	Error   struct {
		Code   string `json:"code"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func sign(t *testing.T, priv ed25519.PrivateKey, method, path string, body []byte) string {
	t.Helper()
	return signAt(t, priv, method, path, body, time.Now(), nonce(t))
}

func signAt(t *testing.T, priv ed25519.PrivateKey, method, path string, body []byte, iat time.Time, jti string) string {
	t.Helper()
	sig, err := SignRequest(priv, method, path, body, iat, jti)
	require.NoError(t, err)
	return sig
}

func nonce(t *testing.T) string {
	t.Helper()
	b := make([]byte, 8)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return hex.EncodeToString(b)
}

func newKey(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return hex.EncodeToString(pub), priv
}

func signedEngine(v *SignatureVerifier) *gin.Engine {
	r := gin.New()
	r.POST("/signed", Signature(v), func(c *gin.Context) {
		key, _ := AuthorityFromContext(c.Request.Context())
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(http.StatusOK, gin.H{"key": key, "body": string(body)})
	})
	return r
}

func postSigned(r *gin.Engine, path, key, sig, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderAuthorityKey, key)
	}
	if sig != "" {
		req.Header.Set(HeaderAuthoritySignature, sig)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSignatureAcceptsMatchingRequest(t *testing.T) {
	key, priv := newKey(t)
	body := `{"durationSeconds":3600}`
	r := signedEngine(NewSignatureVerifier(nil, time.Minute))

	rec := postSigned(r, "/signed", strings.ToUpper(key), sign(t, priv, http.MethodPost, "/signed", []byte(body)), body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, key, out["key"])
	require.Equal(t, body, out["body"])
}

func TestSignatureRejects(t *testing.T) {
	key, priv := newKey(t)
	otherKey, _ := newKey(t)
	body := `{"status":false}`
	raw := []byte(body)
	now := time.Now()

	cases := []struct {
		name   string
		key    string
		sig    string
		reason string
	}{
		{name: "missing headers", reason: "MissingSignature"},
		{name: "bad key", key: "zz", sig: sign(t, priv, http.MethodPost, "/signed", raw), reason: "InvalidAuthorityKey"},
		{name: "garbage signature", key: key, sig: "not-a-jws", reason: "InvalidSignature"},
		{name: "other body", key: key, sig: sign(t, priv, http.MethodPost, "/signed", []byte(`{"status":true}`)), reason: "InvalidSignature"},
		{name: "other path", key: key, sig: sign(t, priv, http.MethodPost, "/elsewhere", raw), reason: "InvalidSignature"},
		{name: "other method", key: key, sig: sign(t, priv, http.MethodPut, "/signed", raw), reason: "InvalidSignature"},
		{name: "other key", key: otherKey, sig: sign(t, priv, http.MethodPost, "/signed", raw), reason: "InvalidSignature"},
		{name: "missing jti", key: key, sig: signAt(t, priv, http.MethodPost, "/signed", raw, now, ""), reason: "InvalidSignature"},
		{name: "stale", key: key, sig: signAt(t, priv, http.MethodPost, "/signed", raw, now.Add(-2*time.Minute), nonce(t)), reason: "StaleSignature"},
		{name: "future", key: key, sig: signAt(t, priv, http.MethodPost, "/signed", raw, now.Add(5*time.Minute), nonce(t)), reason: "StaleSignature"},
		{name: "bare jws", key: key, sig: bareJWS(t, priv, raw), reason: "InvalidSignature"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := signedEngine(NewSignatureVerifier(nil, time.Minute))
			rec := postSigned(r, "/signed", tc.key, tc.sig, body)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			env := decode(t, rec)
			require.False(t, env.Success)
			require.Equal(t, tc.reason, env.Error.Reason)
		})
	}
}

// bareJWS signs the body alone, without request claims.
func bareJWS(t *testing.T, priv ed25519.PrivateKey, payload []byte) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: priv}, nil)
	require.NoError(t, err)
	jws, err := signer.Sign(payload)
	require.NoError(t, err)
	compact, err := jws.CompactSerialize()
	require.NoError(t, err)
	return compact
}

func TestSignatureRejectsReuse(t *testing.T) {
	key, priv := newKey(t)
	body := `{"durationSeconds":10}`
	r := signedEngine(NewSignatureVerifier(NewMemoryNonceStore(), time.Minute))

	sig := sign(t, priv, http.MethodPost, "/signed", []byte(body))
	require.Equal(t, http.StatusOK, postSigned(r, "/signed", key, sig, body).Code)

	rec := postSigned(r, "/signed", key, sig, body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "ReplayedSignature", decode(t, rec).Error.Reason)

	// the same nonce under another key is a different claim
	otherKey, otherPriv := newKey(t)
	reused := signAt(t, otherPriv, http.MethodPost, "/signed", []byte(body), time.Now(), "shared")
	require.Equal(t, http.StatusOK, postSigned(r, "/signed", otherKey, reused, body).Code)
	mine := signAt(t, priv, http.MethodPost, "/signed", []byte(body), time.Now(), "shared")
	require.Equal(t, http.StatusOK, postSigned(r, "/signed", key, mine, body).Code)
}

type failingNonces struct{}

func (failingNonces) Claim(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestSignatureFailsClosedWithoutNonceStore(t *testing.T) {
	key, priv := newKey(t)
	body := `{}`
	r := signedEngine(NewSignatureVerifier(failingNonces{}, time.Minute))

	rec := postSigned(r, "/signed", key, sign(t, priv, http.MethodPost, "/signed", []byte(body)), body)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMemoryNonceStoreExpires(t *testing.T) {
	s := NewMemoryNonceStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := s.Claim(ctx, "a", "n1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = s.Claim(ctx, "a", "n1", time.Minute)
	require.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = s.Claim(ctx, "a", "n1", time.Minute)
	require.True(t, ok)
}

func TestAPIKey(t *testing.T) {
	hash, err := security.HashSecret("good-key", security.Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/", APIKey(hash), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for key, want := range map[string]int{
		"good-key": http.StatusNoContent,
		"bad-key":  http.StatusUnauthorized,
		"":         http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if key != "" {
			req.Header.Set(HeaderAPIKey, key)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, key)
	}
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.2"))

	now = now.Add(30 * time.Second)
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimit(NewIPRateLimiter(1, time.Hour)), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "3600", rec.Header().Get("Retry-After"))
	require.Equal(t, "RateLimited", decode(t, rec).Error.Reason)
}

func TestRequirePermission(t *testing.T) {
	key, priv := newKey(t)
	otherKey, otherPriv := newKey(t)

	e, err := accesscontrol.NewEnforcer(key, "")
	require.NoError(t, err)

	r := gin.New()
	r.POST("/", Signature(NewSignatureVerifier(nil, time.Minute)), RequirePermission(e, accesscontrol.ObjectLicense, accesscontrol.ActionIssue),
		func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(k string, p ed25519.PrivateKey) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
		req.Header.Set(HeaderAuthorityKey, k)
		req.Header.Set(HeaderAuthoritySignature, sign(t, p, http.MethodPost, "/", []byte("{}")))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusNoContent, send(key, priv).Code)

	rec := send(otherKey, otherPriv)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "UnauthorizedAuthority", decode(t, rec).Error.Reason)
}

func TestErrorMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(Error())
	r.GET("/missing", func(c *gin.Context) {
		_ = c.Error(errutil.NotFound("The license does not exist.", nil, errutil.WithReason("LicenseNotFound")))
	})
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(io.ErrUnexpectedEOF)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec)
	require.False(t, env.Success)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
	require.Equal(t, "LicenseNotFound", env.Error.Reason)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "unexpected EOF")
}
