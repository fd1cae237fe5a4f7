package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost for newly minted hashes. Memory-hard enough to resist
// GPU cracking while keeping login latency acceptable on a Raspberry Pi
// class host. Raising these later is safe: verification always honours
// the cost recorded inside the stored hash, not these constants.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB, so 64 MiB
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

// HashPassword derives an Argon2id hash over a fresh random salt and
// returns it in PHC string form:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<b64 salt>$<b64 hash>
//
// Algorithm, version, cost and salt all travel inside the string, so
// nothing else needs storing alongside it.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword re-derives the hash for a candidate password using the
// cost recorded in encodedHash and compares in constant time. False with
// a nil error means the password did not match; an error means the
// stored value is not a usable Argon2id PHC string.
func VerifyPassword(password, encodedHash string) (bool, error) {
	salt, want, cost, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey([]byte(password), salt, cost.iterations, cost.memoryKiB, cost.lanes, uint32(len(want)))

	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// argonCost is the cost tuple recovered from a stored hash. Fields sit
// in argon2.IDKey argument order.
type argonCost struct {
	iterations uint32
	memoryKiB  uint32
	lanes      uint8
}

// decodePHC splits $argon2id$v=19$m=..,t=..,p=..$<salt>$<hash> into its
// parts. The leading $ makes the first split field empty.
func decodePHC(encoded string) ([]byte, []byte, argonCost, error) {
	var cost argonCost

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return nil, nil, cost, fmt.Errorf("malformed PHC hash")
	}
	if fields[1] != "argon2id" {
		return nil, nil, cost, fmt.Errorf("unsupported algorithm %q", fields[1])
	}

	ver, found := strings.CutPrefix(fields[2], "v=")
	if !found {
		return nil, nil, cost, fmt.Errorf("malformed version field %q", fields[2])
	}
	if v, err := strconv.Atoi(ver); err != nil || v != argon2.Version {
		return nil, nil, cost, fmt.Errorf("unsupported argon2 version %q", ver)
	}

	cost, err := parseCost(fields[3])
	if err != nil {
		return nil, nil, cost, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return nil, nil, cost, fmt.Errorf("decoding salt: %w", err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return nil, nil, cost, fmt.Errorf("decoding hash: %w", err)
	}

	return salt, hash, cost, nil
}

// parseCost reads the m=..,t=..,p=.. segment. Parameter order is not
// enforced, but all three must be present and non-zero.
func parseCost(s string) (argonCost, error) {
	var cost argonCost

	for _, kv := range strings.Split(s, ",") {
		key, val, found := strings.Cut(kv, "=")
		if !found {
			return cost, fmt.Errorf("malformed cost parameter %q", kv)
		}

		switch key {
		case "m":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return cost, fmt.Errorf("parsing memory cost: %w", err)
			}
			cost.memoryKiB = uint32(n)
		case "t":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return cost, fmt.Errorf("parsing time cost: %w", err)
			}
			cost.iterations = uint32(n)
		case "p":
			n, err := strconv.ParseUint(val, 10, 8)
			if err != nil {
				return cost, fmt.Errorf("parsing parallelism: %w", err)
			}
			cost.lanes = uint8(n)
		default:
			return cost, fmt.Errorf("unknown cost parameter %q", key)
		}
	}

	if cost.iterations == 0 || cost.memoryKiB == 0 || cost.lanes == 0 {
		return cost, fmt.Errorf("incomplete cost parameters %q", s)
	}
	return cost, nil
}
