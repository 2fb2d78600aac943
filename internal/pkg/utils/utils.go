package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateUUID generates a UUID v4 string.
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateOrderCode generates a unique, human-quotable order code.
func GenerateOrderCode() string {
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), RandomHex(4))
}

// RandomHex generates a random hex string of n bytes.
func RandomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// RandomCode generates a random alphanumeric code of given length.
func RandomCode(length int) string {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"
	b := make([]byte, length)
	for i := range b {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		b[i] = charset[n.Int64()]
	}
	return string(b)
}

// HashAPIKey returns the hex SHA-256 of a tenant API key. Only the hash is stored.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(h[:])
}

// MaskToken hides all but the bot id prefix and the last four characters of a bot token.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	prefix, secret, ok := strings.Cut(token, ":")
	if !ok || len(secret) <= 4 {
		return "****"
	}
	return prefix + ":****" + secret[len(secret)-4:]
}

// BotIDFromToken extracts the numeric bot id that prefixes every Telegram bot token.
func BotIDFromToken(token string) (int64, bool) {
	prefix, _, ok := strings.Cut(strings.TrimSpace(token), ":")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// FormatNumber adds comma separators to a number.
func FormatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var result strings.Builder
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}
	if neg {
		return "-" + result.String()
	}
	return result.String()
}

// FormatPrice renders an amount with its currency code, e.g. "12,500 USD".
func FormatPrice(amount int64, currency string) string {
	if currency == "" {
		return FormatNumber(amount)
	}
	return FormatNumber(amount) + " " + strings.ToUpper(currency)
}

// TrimErr shortens an error message so it fits a text column.
func TrimErr(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) > 900 {
		msg = msg[:900]
	}
	return msg
}
