// FilePath: internal/models/models.operator.go
package models

// Account roles stored on user profiles.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// RequestStatus is the derived lifecycle status of an operator request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// OperatorRequest is one registered operator account folded out of the users
// collection. Raw fields are kept as read; Status and ActivityAt are derived
// (legacy records lack an explicit status field).
type OperatorRequest struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty" readxs:"admin,system" writexs:"admin,system"`
	Role  string `json:"role"`

	Approved    bool  `json:"approved"`
	HasApproved bool  `json:"-"`
	RawStatus   string `json:"-"`
	CreatedAt   int64 `json:"created_at"`
	ApprovedAt  int64 `json:"approved_at,omitempty"`
	RejectedAt  int64 `json:"rejected_at,omitempty"`

	// Derived
	Status     RequestStatus `json:"status"`
	ActivityAt int64         `json:"activity_at"`
}

// OperatorProfile is the editable slice of a user profile. Field access is
// role gated via struccy tags; admins may touch everything, operators only
// their own display fields.
type OperatorProfile struct {
	UID   string `json:"uid" readxs:"*" writexs:"system"`
	Name  string `json:"name" readxs:"*" writexs:"admin,operator,system"`
	Email string `json:"email" readxs:"*" writexs:"system"`
	Phone string `json:"phone" readxs:"admin,operator,system" writexs:"admin,operator,system"`
	Role  string `json:"role" readxs:"*" writexs:"admin,system"`
}
