package ws

import "github.com/anavi/settlement/internal/domain"

// Message type discriminators.
const (
	MsgTypeAuditEntry = "audit_entry"
	MsgTypeChainAlert = "chain_alert"
	MsgTypeError      = "error"
)

// AuditEntryMessage carries one committed audit entry. The entry includes
// its hash and prev_hash so a subscriber can verify the live chain segment
// it has observed.
type AuditEntryMessage struct {
	Type  string            `json:"type"`
	Entry domain.AuditEntry `json:"entry"`
}

// ChainAlertMessage reports a failed periodic chain verification.
type ChainAlertMessage struct {
	Type   string             `json:"type"`
	Report domain.ChainReport `json:"report"`
}

// ErrorMessage is sent to a single client on protocol errors.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
