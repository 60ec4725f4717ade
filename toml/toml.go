// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package toml holds configuration value types which read and write
// themselves as TOML strings and double as command line flags.
package toml

import "time"

// Duration is a time.Duration written as "1m30s" in TOML files and on the
// command line.
type Duration time.Duration

// String returns the string representation of the duration.
func (d Duration) String() string { return time.Duration(d).String() }

// Set parses a flag value. It implements pflag.Value.
func (d *Duration) Set(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// Type implements pflag.Value.
func (d *Duration) Type() string { return "duration" }

// UnmarshalText parses a TOML value into a duration value.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = Duration(v)
	return nil
}

// MarshalText writes the duration as a string, which go-toml quotes.
func (d Duration) MarshalText() (text []byte, err error) {
	return []byte(d.String()), nil
}
