// Copyright 2025 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package command

import (
	"fmt"
	"strconv"
	"time"
)

// DurationFlag implements flag.Value to store an integer-valued command-line
// flag as a time.Duration using predefined units.
type DurationFlag struct {
	units time.Duration  // units to apply to the supplied integer value
	dest  *time.Duration // destination for the parsed value
}

// NewDurationFlag returns a DurationFlag that parses an integer flag value
// using the supplied units and stores it in dest.
// def contains a default value to assign when the flag is unspecified.
func NewDurationFlag(units time.Duration, dest *time.Duration, def time.Duration) *DurationFlag {
	f := &DurationFlag{units, dest}
	*f.dest = def
	return f
}

func (f *DurationFlag) String() string { return "" }

func (f *DurationFlag) Set(v string) error {
	num, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	*f.dest = time.Duration(num) * f.units
	return nil
}
