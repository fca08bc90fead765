package workload

import "strconv"

// KeyPrefix starts every record key
const KeyPrefix = "user"

const keyDigits = 12

// KeyName formats a record index as "user" plus a 12-digit zero-padded
// number, so that lexical order matches insertion order.
func KeyName(index uint64) string {
	digits := strconv.FormatUint(index, 10)
	buf := make([]byte, 0, len(KeyPrefix)+keyDigits)
	buf = append(buf, KeyPrefix...)
	for i := len(digits); i < keyDigits; i++ {
		buf = append(buf, '0')
	}
	return string(append(buf, digits...))
}

// ScanKeyNames lists up to length consecutive keys starting at start, never
// past limit (exclusive)
func ScanKeyNames(start uint64, length int, limit uint64) []string {
	if start >= limit || length <= 0 {
		return nil
	}
	if remaining := limit - start; uint64(length) > remaining {
		length = int(remaining)
	}
	keys := make([]string, length)
	for i := range keys {
		keys[i] = KeyName(start + uint64(i))
	}
	return keys
}

const valueAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// FillValue overwrites buf with printable bytes drawn from src
func FillValue(buf []byte, src Source) {
	for i := 0; i < len(buf); {
		r := src.Uint64()
		for j := 0; j < 8 && i < len(buf); j++ {
			buf[i] = valueAlphabet[int(r&0xff)%len(valueAlphabet)]
			r >>= 8
			i++
		}
	}
}
