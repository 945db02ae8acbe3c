package models

// EntitlementStatus is the yes/no/pay-first decision for a viewer and a
// content item. Computed on demand, never persisted.
type EntitlementStatus string

const (
	EntitlementGranted         EntitlementStatus = "granted"
	EntitlementDenied          EntitlementStatus = "denied"
	EntitlementPaymentRequired EntitlementStatus = "payment_required"
)

// Denial reasons exposed to callers so the UI can distinguish outcomes.
const (
	DenialReasonNotApproved = "not_approved"
	DenialReasonNotFound    = "not_found"
)

// Entitlement is the result of resolving a viewer against a content item.
type Entitlement struct {
	Status     EntitlementStatus `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	PriceCents int64             `json:"priceCents,omitempty"`
}

// Granted reports whether access is allowed right now.
func (e Entitlement) Granted() bool {
	return e.Status == EntitlementGranted
}
