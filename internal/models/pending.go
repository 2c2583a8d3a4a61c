package models

import "time"

// PendingSignup lives in Redis under pending:signup:<email> until the OTP is
// verified or the key expires. Re-registering overwrites the previous record.
type PendingSignup struct {
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"passwordHash"`
	DisplayName  string    `json:"displayName"`
	OTPHash      []byte    `json:"otpHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PendingReset lives in Redis under pending:reset:<userID> with the same
// TTL/overwrite semantics.
type PendingReset struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	OTPHash   []byte    `json:"otpHash"`
	CreatedAt time.Time `json:"createdAt"`
}
