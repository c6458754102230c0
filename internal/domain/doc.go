// Package domain implements the deterministic geohash destination
// algorithm and its supporting calendar rules.
//
// # Algorithm
//
// For a calendar date and a 1°×1° graticule, the destination is derived
// from the Dow Jones Industrial Average opening value published for the
// effective trading date:
//
//	MD5("YYYY-MM-DD-<opening value>")
//
// where the date is the effective trading date and the opening value is
// the exact string published by the index source. The first 16 hex
// digits of the digest form the latitude fraction, the last 16 the
// longitude fraction, each read as a base-16 fixed-point fraction in
// [0,1). Graticule destinations add the fraction to the cell's integer
// magnitude and apply the hemisphere sign; the global destination
// scales the fraction pair across the full ±90/±180 range.
//
// # The 30W rule
//
// Graticules east of the 30°W meridian use the previous trading day's
// opening value, because the market has not opened yet when their local
// day starts. The rule took effect on 2008-05-27: requests strictly
// after 2008-05-26 apply it. Global destinations always apply it,
// regardless of date.
//
// # Effective trading dates
//
// After any 30W offset, weekend dates clamp back to the preceding
// business day: Saturday −1 day, Sunday −2 days. The published value
// for that business day is what gets hashed.
//
// # Reproducibility
//
// The index value string is part of the permanent record. It must never
// be re-parsed, rounded, or reformatted between fetch and hash:
// "8934.10" and "8934.1" produce different digests and therefore
// different destinations.
package domain
