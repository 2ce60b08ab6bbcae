// Package fs provides file-system implementations of the signin user,
// identity, channel and OTP stores. Each record is one JSON file written
// atomically, which suits development and single-node deployments.
package fs
