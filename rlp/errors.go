package rlp

import "errors"

var (
	// ErrEndOfInput is returned when the reader is exhausted before a value
	// could be decoded.
	ErrEndOfInput = errors.New("rlp: end of input")

	// ErrInvalidEncoding is returned for a malformed length prefix, such as a
	// length-of-length encoding with leading zero bytes.
	ErrInvalidEncoding = errors.New("rlp: invalid encoding")

	// ErrTypeMismatch is returned when ReadBytes is called on a list, or
	// ReadList on a string.
	ErrTypeMismatch = errors.New("rlp: type mismatch")

	// ErrInputTooShort is returned when a declared length exceeds the bytes
	// remaining in the input.
	ErrInputTooShort = errors.New("rlp: input too short")

	// ErrValueTooLarge is returned when a value's length cannot be
	// represented within RLP's length-prefix encoding.
	ErrValueTooLarge = errors.New("rlp: value too large")
)
