//go:build !wasm
// +build !wasm

// Package gorm stores signin users, identities, channels and OTP records in
// a relational database through GORM. Postgres is used in production and
// SQLite in tests.
//
// Tables created by AutoMigrate: users, identities, channels and
// otp_challenges. Expired OTP rows are filtered on read and can be purged
// with OTPStore.DeleteExpiredOTPs.
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	gormstore.AutoMigrate(db)
//	otps := gormstore.NewOTPStore(db)
package gorm
