//go:build !wasm
// +build !wasm

// Package gae stores signin users, identities, channels and OTP records in
// Google Cloud Datastore under the kinds User, Identity, Channel and
// OTPChallenge. Every store takes a namespace so tenants can share a project.
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	users := gae.NewUserStore(client, "tenant-123")
//	otps := gae.NewOTPStore(client, "tenant-123")
//
// Datastore has no TTL, so expired OTP challenges are hidden on read and
// removed by OTPStore.DeleteExpiredOTPs.
package gae
