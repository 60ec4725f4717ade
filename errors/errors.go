// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package errors wraps pkg/errors and includes some custom features such as
// error codes. Codes can also be layered on top of an existing error with
// Wrapc, in which case every code in the chain can be matched with Is and the
// original cause stays reachable through Unwrap.
package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Code is an error code which can be used to check against a given error. For
// example, see the Is() method.
type Code string

func New(code Code, message string) error {
	return errors.WithStack(codedError{
		Code:    code,
		Message: message,
	})
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...interface{}) error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrapc annotates err with a code and a message. The returned error matches
// code via Is, and also still matches any code err already carried.
func Wrapc(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&codedWrapper{
		codedError: codedError{
			Code:    code,
			Message: message,
		},
		cause: err,
	})
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Cause(err error) error {
	return errors.Cause(err)
}

func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Is is a fork of the Is() method from `pkg/errors` which takes as its target
// an error Code instead of an error.
func Is(err error, target Code) bool {
	match := codedError{
		Code: target,
	}
	return errors.Is(err, match)
}

// CodeOf returns the outermost code found in err's chain, or the empty code.
func CodeOf(err error) Code {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := e.(type) {
		case codedError:
			return v.Code
		case *codedError:
			return v.Code
		case *codedWrapper:
			return v.Code
		}
	}
	return ""
}

// Codes returns every code in err's chain, outermost first.
func Codes(err error) []Code {
	var out []Code
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := e.(type) {
		case codedError:
			out = append(out, v.Code)
		case *codedError:
			out = append(out, v.Code)
		case *codedWrapper:
			out = append(out, v.Code)
		}
	}
	return out
}

// Root returns the innermost error of the chain.
func Root(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// Contains reports whether any error in the chain has a message containing
// substr.
func Contains(err error, substr string) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.Contains(e.Error(), substr) {
			return true
		}
	}
	return false
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func WithMessage(err error, message string) error {
	return errors.WithMessage(err, message)
}

func WithMessagef(err error, format string, args ...interface{}) error {
	return errors.WithMessagef(err, format, args...)
}

func WithStack(err error) error {
	return errors.WithStack(err)
}

func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, fmt string, args ...interface{}) error {
	return errors.Wrapf(err, fmt, args...)
}

// codedError is the fundamental type used by this package to provide coded
// errors.
type codedError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Wrapped string `json:"wrapped,omitempty"`
	// Chain holds the codes of the wrapped errors of an unmarshaled error.
	Chain []Code `json:"chain,omitempty"`
}

func (ce codedError) Error() string {
	if ce.Wrapped != "" {
		return ce.Wrapped
	}
	return ce.Message
}

func (ce codedError) Is(err error) bool {
	e, ok := err.(codedError)
	if !ok {
		return false
	}
	if ce.Code == e.Code {
		return true
	}
	for _, c := range ce.Chain {
		if c == e.Code {
			return true
		}
	}
	return false
}

// codedWrapper is a codedError sitting on top of another error.
type codedWrapper struct {
	codedError
	cause error
}

func (cw *codedWrapper) Error() string {
	return cw.Message + ": " + cw.cause.Error()
}

func (cw *codedWrapper) Unwrap() error { return cw.cause }

const (
	ErrUncoded Code = "Uncoded"
)

// MarshalJSON returns the provided error as a json object (as a string)
// representing a codedError. The code is the outermost code of the chain, the
// chain holds the others, the message is the innermost cause and wrapped is
// the full message. If err carries no code, the json object will still
// represent a codedError but its `code` value will be empty.
func MarshalJSON(err error) string {
	out := &codedError{
		Code:    CodeOf(err),
		Message: Root(err).Error(),
		Wrapped: err.Error(),
	}
	if codes := Codes(err); len(codes) > 1 {
		out.Chain = codes[1:]
	}

	// Marshal the codedError to json as output.
	j, jerr := json.Marshal(out)
	if jerr != nil {
		return out.Error()
	}

	return string(j)
}

// UnmarshalJSON converts the byte slice into a codedError. If the bytes can't
// unmarshal to a codedError, a normal error will be returned containing the
// string value of the byte slice.
func UnmarshalJSON(r io.Reader) error {
	b, _ := io.ReadAll(r)

	out := &codedError{}
	if err := json.Unmarshal(b, out); err != nil || (out.Code == "" && out.Message == "" && out.Wrapped == "") {
		return errors.New(strings.TrimSpace(string(b)))
	}
	return out
}
