// Package barcode validates the EAN-8 and EAN-13 codes printed on products.
//
// Both lengths are checked in their GTIN-14 form: the code is left-padded with
// zeros to 14 digits and the last digit must equal the weighted checksum of the
// first 13 (weight 3 on even positions, 1 on odd positions, counted from the
// left).
package barcode

import (
	"errors"
	"strings"
)

var (
	ErrFormat   = errors.New("barcode must be 8 or 13 digits")
	ErrChecksum = errors.New("barcode checksum mismatch")
)

const gtinLength = 14

// Validate returns code unchanged when it is a well-formed EAN-8 or EAN-13.
func Validate(code string) (string, error) {
	padded, err := Normalize(code)
	if err != nil {
		return "", err
	}
	want := CheckDigit(padded[:gtinLength-1])
	if int(padded[gtinLength-1]-'0') != want {
		return "", ErrChecksum
	}
	return code, nil
}

// Normalize left-pads code to the 14 digit form used for checksums and
// uniqueness. It does not verify the check digit.
func Normalize(code string) (string, error) {
	if len(code) != 8 && len(code) != 13 {
		return "", ErrFormat
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", ErrFormat
		}
	}
	return strings.Repeat("0", gtinLength-len(code)) + code, nil
}

// CheckDigit computes the check digit for the 13 leading digits of a GTIN-14.
func CheckDigit(data string) int {
	sum := 0
	for i := 0; i < len(data); i++ {
		digit := int(data[i] - '0')
		if i%2 == 0 {
			sum += digit * 3
		} else {
			sum += digit
		}
	}
	return (10 - sum%10) % 10
}
