package middleware

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"license-authority/pkg/errutil"
	"license-authority/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"go.uber.org/zap"
)

const (
	HeaderAuthorityKey       = "X-Authority-Key"
	HeaderAuthoritySignature = "X-Authority-Signature"

	DefaultSignatureMaxAge = 5 * time.Minute

	maxSignedBody  = 1 << 20
	maxNonceLength = 128
	clockSkew      = 30 * time.Second
)

type authorityKey struct{}

// WithAuthority stores the verified caller key in ctx.
func WithAuthority(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, authorityKey{}, key)
}

// AuthorityFromContext returns the caller key verified by Signature.
func AuthorityFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(authorityKey{}).(string)
	return key, ok && key != ""
}

// RequestClaims bind a signature to one request. They travel next to the
// registered iat and jti claims.
type RequestClaims struct {
	Method   string `json:"htm"`
	Path     string `json:"htu"`
	BodyHash string `json:"bsh"`
}

// BodyHash is the unpadded base64url SHA-256 of body.
func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SignRequest produces the X-Authority-Signature value for a request.
func SignRequest(priv ed25519.PrivateKey, method, path string, body []byte, issuedAt time.Time, nonce string) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: priv},
		(&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", err
	}
	return jwt.Signed(signer).
		Claims(jwt.Claims{IssuedAt: jwt.NewNumericDate(issuedAt), ID: nonce}).
		Claims(RequestClaims{Method: method, Path: path, BodyHash: BodyHash(body)}).
		Serialize()
}

// SignatureVerifier checks caller signatures and remembers used nonces.
type SignatureVerifier struct {
	nonces NonceStore
	maxAge time.Duration
	now    func() time.Time
}

// NewSignatureVerifier accepts signatures at most maxAge old. A nil store
// keeps nonces in process memory.
func NewSignatureVerifier(nonces NonceStore, maxAge time.Duration) *SignatureVerifier {
	if maxAge <= 0 {
		maxAge = DefaultSignatureMaxAge
	}
	if nonces == nil {
		nonces = NewMemoryNonceStore()
	}
	return &SignatureVerifier{nonces: nonces, maxAge: maxAge, now: time.Now}
}

func unauthorized(c *gin.Context, reason, msg string, err error) {
	response.Fail(c, errutil.Unauthorized(msg, err, errutil.WithReason(reason)))
}

// Signature verifies that the request was signed by the key in
// X-Authority-Key. X-Authority-Signature is a compact EdDSA JWT whose htm,
// htu and bsh claims must match the method, path and body of this request.
// Each jti is accepted once per key.
func Signature(v *SignatureVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		keyHex := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderAuthorityKey)))
		compact := strings.TrimSpace(c.GetHeader(HeaderAuthoritySignature))
		if keyHex == "" || compact == "" {
			unauthorized(c, "MissingSignature", "Authority key and signature are required", nil)
			return
		}

		raw, err := hex.DecodeString(keyHex)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			unauthorized(c, "InvalidAuthorityKey", "Authority key is malformed", err)
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSignedBody+1))
		if err != nil {
			response.Fail(c, errutil.BadRequest("failed to read request body", err))
			return
		}
		if len(body) > maxSignedBody {
			response.Fail(c, errutil.BadRequest("request body too large", nil))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		tok, err := jwt.ParseSigned(compact, []jose.SignatureAlgorithm{jose.EdDSA})
		if err != nil {
			unauthorized(c, "InvalidSignature", "Signature is malformed", err)
			return
		}

		var (
			std jwt.Claims
			req RequestClaims
		)
		if err := tok.Claims(ed25519.PublicKey(raw), &std, &req); err != nil {
			unauthorized(c, "InvalidSignature", "Signature does not match the authority key", err)
			return
		}

		if req.Method != c.Request.Method || req.Path != c.Request.URL.Path || req.BodyHash != BodyHash(body) {
			unauthorized(c, "InvalidSignature", "Signature does not cover this request", nil)
			return
		}
		if std.IssuedAt == nil || std.ID == "" || len(std.ID) > maxNonceLength {
			unauthorized(c, "InvalidSignature", "Signature must carry iat and jti", nil)
			return
		}

		now := v.now()
		issuedAt := std.IssuedAt.Time()
		if err := std.ValidateWithLeeway(jwt.Expected{Time: now}, clockSkew); err != nil || now.Sub(issuedAt) > v.maxAge {
			unauthorized(c, "StaleSignature", "Signature is outside its validity window", err)
			return
		}

		fresh, err := v.nonces.Claim(c.Request.Context(), keyHex, std.ID, v.maxAge+clockSkew)
		if err != nil {
			zap.L().Error("failed to record signature nonce", zap.Error(err))
			response.Fail(c, errutil.ServiceUnavailable("Signature nonce store unavailable", err))
			return
		}
		if !fresh {
			unauthorized(c, "ReplayedSignature", "Signature has already been used", nil)
			return
		}

		c.Request = c.Request.WithContext(WithAuthority(c.Request.Context(), keyHex))
		c.Next()
	}
}
