package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/elimu/core"
)

var (
	salt    = []byte("elimu.core.user.token_gen")
	NowFunc = time.Now // mockable

	// set via ConfigureTokenGen
	secretKey                     []byte
	passwordResetTimeoutDelta     time.Duration
	emailConfirmationTimeoutDelta time.Duration

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// ConfigureTokenGen sets the signing material for this package;
// it must be called once at startup (NewService does).
func ConfigureTokenGen(conf *core.Config) {
	secretKey = conf.SecretKey
	passwordResetTimeoutDelta = conf.PasswordResetTimeoutDelta
	emailConfirmationTimeoutDelta = conf.EmailConfirmationTimeoutDelta
}

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

// DecodeUID base64 decodes given UID
func DecodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// MakeResetToken generates a password reset token for a given User.
// The token is invalidated by use: the hash value includes the password hash
// and last login, both of which change once the reset goes through.
func MakeResetToken(usr User) (string, error) {
	return makeTokenWithTimestamp(resetHashValue(usr, numDaysSince2001(NowFunc())))
}

// VerifyResetToken checks that a password reset token for a given User is valid.
func VerifyResetToken(usr User, token string) error {
	return verifyToken(token, passwordResetTimeoutDelta, func(ts int) []byte { return resetHashValue(usr, ts) })
}

// MakeConfirmationToken generates an email confirmation token for a given User.
// Confirming flips EmailConfirmed which invalidates the token.
func MakeConfirmationToken(usr User) (string, error) {
	return makeTokenWithTimestamp(confirmationHashValue(usr, numDaysSince2001(NowFunc())))
}

// VerifyConfirmationToken checks that an email confirmation token for a given User is valid.
func VerifyConfirmationToken(usr User, token string) error {
	return verifyToken(token, emailConfirmationTimeoutDelta, func(ts int) []byte { return confirmationHashValue(usr, ts) })
}

func verifyToken(token string, timeout time.Duration, hashValue func(ts int) []byte) error {
	if token == "" {
		return errInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}
	tsB32 := parts[0]

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(tsB32)
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	newToken, err := makeTokenWithTimestamp(hashValue(ts))
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return errInvalidToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(time.Now()) - ts) > int(timeout/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func makeTokenWithTimestamp(val []byte) (string, error) {
	ts, err := extractTimestamp(val)
	if err != nil {
		return "", err
	}
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	sig, err := sign(val)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", tsB32, sig), nil
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func sign(val []byte) (string, error) {
	key := sha256.Sum256(append(salt, secretKey...))
	h := hmac.New(sha256.New, key[:])
	if _, err := h.Write(val); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

// the timestamp is always the last "|"-separated field of a hash value
func extractTimestamp(val []byte) (int, error) {
	fields := bytes.Split(val, []byte("|"))
	return strconv.Atoi(string(fields[len(fields)-1]))
}

func resetHashValue(usr User, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(usr.ID)
	val.WriteString("|")
	val.Write(usr.PasswordHash)
	val.WriteString("|")
	if usr.LastLogin != nil {
		val.WriteString(usr.LastLogin.String())
	}
	val.WriteString("|")
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}

func confirmationHashValue(usr User, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(usr.ID)
	val.WriteString("|")
	val.WriteString(strconv.FormatBool(usr.EmailConfirmed))
	val.WriteString("|")
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
