package domain

import (
	"fmt"
	"time"
)

// Role enumerates call-center roles.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleOperator   Role = "operator"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleSupervisor, RoleOperator:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// OperatorState is the account state of an operator.
type OperatorState string

const (
	OperatorStateActive   OperatorState = "active"
	OperatorStateInactive OperatorState = "inactive"
	OperatorStateDeleted  OperatorState = "deleted"
)

// Operator is a call-center user with its routing entitlements.
type Operator struct {
	ID               int64
	Name             string
	Email            string
	Role             Role
	State            OperatorState
	AssignedQueues   []int64
	EntitledProducts []int64
	EntitledWebIDs   []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsActive reports whether the operator may work.
func (op *Operator) IsActive() bool {
	return op.State == OperatorStateActive
}

// WorksQueue reports whether queueID is assigned to the operator.
func (op *Operator) WorksQueue(queueID int64) bool {
	return containsInt64(op.AssignedQueues, queueID)
}

// SellsProduct reports whether the operator is entitled to productID.
func (op *Operator) SellsProduct(productID int64) bool {
	return containsInt64(op.EntitledProducts, productID)
}

// HandlesWebID reports whether the operator is entitled to leads from webID.
func (op *Operator) HandlesWebID(webID string) bool {
	for _, id := range op.EntitledWebIDs {
		if id == webID {
			return true
		}
	}
	return false
}

func containsInt64(values []int64, v int64) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
