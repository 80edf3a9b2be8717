package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"PPRealtime/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedCredential = errs.ErrAuth.WithDetail("malformed credential")
	ErrInvalidCredential   = errs.ErrAuth.WithDetail("invalid credential")
	ErrExpiredCredential   = errs.ErrAuth.WithDetail("expired credential")
)

// Options 控制签名与TTL等参数。
type Options struct {
	Secret []byte        // HMAC 密钥（生产用ENV/KMS）
	Alg    string        // HS256/HS384/HS512（默认 HS256）
	TTL    time.Duration // 令牌有效期（默认 2h）
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 2 * time.Hour}
}

// DecodeSecret 兼容 base64 编码的密钥，解不开就按原文使用
func DecodeSecret(s string) []byte {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) > 0 {
		return b
	}
	return []byte(s)
}

// Verifier 校验 bearer token，返回 sub 里的用户名。无状态，可并发使用。
type Verifier struct {
	opts   Options
	method jwtlib.SigningMethod
	parser *jwtlib.Parser
}

func NewVerifier(opts Options) (*Verifier, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return nil, err
	}
	if len(opts.Secret) == 0 {
		return nil, errs.ErrInvalidRequest.WrapMsg("jwt secret is empty")
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	return &Verifier{
		opts:   opts,
		method: method,
		parser: jwtlib.NewParser(
			jwtlib.WithValidMethods([]string{method.Alg()}),
			jwtlib.WithExpirationRequired(),
		),
	}, nil
}

// Verify 返回 token 对应的用户；失败一律是 AuthError 家族
func (v *Verifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedCredential.Wrap()
	}
	parsed, err := v.parser.ParseWithClaims(token, &jwtlib.RegisteredClaims{}, func(t *jwtlib.Token) (interface{}, error) {
		return v.opts.Secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwtlib.ErrTokenExpired):
			return "", ErrExpiredCredential.Wrap()
		case errors.Is(err, jwtlib.ErrTokenMalformed):
			return "", ErrMalformedCredential.Wrap()
		default:
			return "", ErrInvalidCredential.WrapMsg("", "err", err.Error())
		}
	}
	claims, ok := parsed.Claims.(*jwtlib.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidCredential.Wrap()
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", ErrInvalidCredential.WrapMsg("missing subject")
	}
	return sub, nil
}

// Generate 签发 token（测试和工具使用）
func (v *Verifier) Generate(userID string) (string, time.Time, error) {
	return v.GenerateWithTTL(userID, v.opts.TTL)
}

func (v *Verifier) GenerateWithTTL(userID string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := jwtlib.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(exp),
	}
	signed, err := jwtlib.NewWithClaims(v.method, claims).SignedString(v.opts.Secret)
	if err != nil {
		return "", time.Time{}, errs.WrapMsg(err, "sign token")
	}
	return signed, exp, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, errs.ErrInvalidRequest.WrapMsg(fmt.Sprintf("unsupported alg: %s (use HS256/HS384/HS512)", alg))
	}
}
