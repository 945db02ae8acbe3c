package dto

// StartSessionRequest opens a secure viewing session. ViewerID is optional;
// when present it must match the token identity unless the caller is an
// admin acting on a viewer's behalf. AgreementAccepted records the legal
// agreement step and is required.
type StartSessionRequest struct {
	ContentItemID     string `json:"contentItemId" validate:"required"`
	ViewerID          string `json:"viewerId"`
	AgreementAccepted bool   `json:"agreementAccepted"`
}

// HeartbeatResponse reports the authoritative remaining time.
type HeartbeatResponse struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

// SecurityEventRequest reports a client-observed violation attempt.
type SecurityEventRequest struct {
	Kind string `json:"kind" validate:"required"`
}

// EndSessionRequest closes a session. Reason is optional and may only be
// MANUAL; the other end reasons are assigned server-side.
type EndSessionRequest struct {
	Reason string `json:"reason"`
}
