// Package cashaddr implements the CashAddr address format: a base32
// encoding of a version byte plus hash payload with a BCH checksum,
// prefixed with a network identifier.
package cashaddr

import (
	"strings"

	"github.com/samrock5000/nakamoto-cash/errors"
)

// AddressType is the type nibble carried in the version byte.
type AddressType uint8

const (
	// TypeP2PKH is a pay-to-public-key-hash address.
	TypeP2PKH AddressType = 0x00

	// TypeP2SH is a pay-to-script-hash address.
	TypeP2SH AddressType = 0x08

	// TypeP2PKHWithTokens is a token-aware pay-to-public-key-hash address.
	TypeP2PKHWithTokens AddressType = 0x10

	// TypeP2SHWithTokens is a token-aware pay-to-script-hash address.
	TypeP2SHWithTokens AddressType = 0x18
)

const (
	typeMask = 0x78
	sizeMask = 0x07
)

const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// charsetRev maps an ASCII byte back to its 5-bit value, or -1.
var charsetRev [128]int8

func init() {
	for i := range charsetRev {
		charsetRev[i] = -1
	}

	for i := 0; i < len(charset); i++ {
		c := charset[i]
		charsetRev[c] = int8(i)

		if c >= 'a' && c <= 'z' {
			charsetRev[c-'a'+'A'] = int8(i)
		}
	}
}

// hashSizes maps the version byte's size bits to the payload length.
var hashSizes = [8]int{20, 24, 28, 32, 40, 48, 56, 64}

func sizeBits(length int) (uint8, bool) {
	for i, size := range hashSizes {
		if size == length {
			return uint8(i), true
		}
	}

	return 0, false
}

// polymod is the BCH checksum function over 5-bit groups.
func polymod(v []byte) uint64 {
	c := uint64(1)

	for _, d := range v {
		c0 := uint8(c >> 35)
		c = ((c & 0x0007ffffffff) << 5) ^ uint64(d)

		if c0&0x01 != 0 {
			c ^= 0x98f2bc8e61
		}

		if c0&0x02 != 0 {
			c ^= 0x79b76d99e2
		}

		if c0&0x04 != 0 {
			c ^= 0xf33e5fb3c4
		}

		if c0&0x08 != 0 {
			c ^= 0xae2eabe2a8
		}

		if c0&0x10 != 0 {
			c ^= 0x1e4f43e470
		}
	}

	return c ^ 1
}

// expandPrefix lowers the prefix to its 5-bit form plus a zero separator.
func expandPrefix(prefix string) []byte {
	expanded := make([]byte, 0, len(prefix)+1)
	for i := 0; i < len(prefix); i++ {
		expanded = append(expanded, prefix[i]&0x1f)
	}

	return append(expanded, 0)
}

// convertBits regroups the data from inBits-sized groups to outBits-sized
// groups. Encoding pads the final group; decoding rejects nothing here, the
// caller drops the checksum groups first.
func convertBits(data []byte, inBits, outBits uint, pad bool) []byte {
	ret := make([]byte, 0, (len(data)*int(inBits)+int(outBits)-1)/int(outBits))

	var acc uint16

	var num uint

	groupMask := uint16(1<<outBits) - 1

	for _, d := range data {
		acc = acc<<inBits | uint16(d)
		num += inBits

		for num > outBits {
			ret = append(ret, byte(acc>>(num-outBits)))
			acc &^= groupMask << (num - outBits)
			num -= outBits
		}
	}

	if pad {
		if num > 0 {
			ret = append(ret, byte(acc<<(outBits-num)))
		}
	} else {
		padding := uint(len(data)) * inBits % outBits
		if num > padding {
			ret = append(ret, byte(acc>>padding))
		}
	}

	return ret
}

// Encode renders the hash as a CashAddr string with the given network
// prefix. The hash length selects the size bits of the version byte and
// must be one of the supported digest sizes.
func Encode(prefix string, addrType AddressType, hash []byte) (string, error) {
	size, ok := sizeBits(len(hash))
	if !ok {
		return "", errors.NewInvalidArgumentError("unsupported hash length %d", len(hash))
	}

	versionByte := byte(addrType) | size

	payload := make([]byte, 0, 1+len(hash))
	payload = append(payload, versionByte)
	payload = append(payload, hash...)
	payload5 := convertBits(payload, 8, 5, true)

	checksumInput := expandPrefix(prefix)
	checksumInput = append(checksumInput, payload5...)
	checksumInput = append(checksumInput, make([]byte, 8)...)
	checksum := polymod(checksumInput)

	var sb strings.Builder

	sb.WriteString(prefix)
	sb.WriteByte(':')

	for _, b := range payload5 {
		sb.WriteByte(charset[b])
	}

	for i := 7; i >= 0; i-- {
		sb.WriteByte(charset[(checksum>>(uint(i)*5))&31])
	}

	return sb.String(), nil
}

// Decode parses a CashAddr string. When the address carries no prefix the
// defaultPrefix is assumed; the checksum covers the prefix, so a mismatch
// fails verification.
func Decode(addr, defaultPrefix string) (AddressType, []byte, error) {
	prefix := defaultPrefix
	payloadStr := addr

	if i := strings.IndexByte(addr, ':'); i >= 0 {
		prefix = strings.ToLower(addr[:i])
		payloadStr = addr[i+1:]

		if strings.IndexByte(payloadStr, ':') >= 0 {
			return 0, nil, errors.NewInvalidArgumentError("invalid address %s", addr)
		}
	}

	if len(payloadStr) == 0 {
		return 0, nil, errors.NewInvalidArgumentError("empty address payload")
	}

	if strings.ToLower(payloadStr) != payloadStr && strings.ToUpper(payloadStr) != payloadStr {
		return 0, nil, errors.NewInvalidArgumentError("address %s mixes upper and lower case", addr)
	}

	payload5 := make([]byte, 0, len(payloadStr))

	for i := 0; i < len(payloadStr); i++ {
		c := payloadStr[i]
		if c >= 128 || charsetRev[c] < 0 {
			return 0, nil, errors.NewInvalidArgumentError("invalid character %q in address", c)
		}

		payload5 = append(payload5, byte(charsetRev[c]))
	}

	if len(payload5) < 9 {
		return 0, nil, errors.NewInvalidArgumentError("address payload too short")
	}

	checksumInput := expandPrefix(prefix)
	checksumInput = append(checksumInput, payload5...)

	if polymod(checksumInput) != 0 {
		return 0, nil, errors.NewInvalidArgumentError("address checksum mismatch")
	}

	payload := convertBits(payload5[:len(payload5)-8], 5, 8, false)
	if len(payload) == 0 {
		return 0, nil, errors.NewInvalidArgumentError("address payload too short")
	}

	versionByte := payload[0]
	hash := payload[1:]

	if hashSizes[versionByte&sizeMask] != len(hash) {
		return 0, nil, errors.NewInvalidArgumentError("hash length %d does not match version byte", len(hash))
	}

	return AddressType(versionByte & typeMask), hash, nil
}
