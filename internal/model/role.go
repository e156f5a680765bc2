package model

import "strings"

// MessageRole is the closed set of message authors kept in storage.
type MessageRole string

const (
	RoleCustomer  MessageRole = "user"
	RoleStaff     MessageRole = "agent"
	RoleAutomated MessageRole = "assistant"
)

func (r MessageRole) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAutomated:
		return true
	}
	return false
}

// DisplayRole is what a chat bubble renders as. Staff and automated
// messages share a style; the stored role is never rewritten.
type DisplayRole string

const (
	DisplayUser      DisplayRole = "user"
	DisplayAssistant DisplayRole = "assistant"
)

func Present(r MessageRole) DisplayRole {
	if r == RoleCustomer {
		return DisplayUser
	}
	return DisplayAssistant
}

func DisplayLabel(r MessageRole) string {
	if r == RoleCustomer {
		return "You"
	}
	return "EcoListing"
}

// UserRole is the role assignment of an authenticated identity.
type UserRole string

const (
	UserRoleCustomer UserRole = "user"
	UserRoleAgent    UserRole = "agent"
	UserRoleAdmin    UserRole = "superadmin"
)

// ParseUserRole maps unknown or empty values to the least privileged role.
func ParseUserRole(raw string) UserRole {
	switch UserRole(strings.ToLower(strings.TrimSpace(raw))) {
	case UserRoleAgent:
		return UserRoleAgent
	case UserRoleAdmin:
		return UserRoleAdmin
	default:
		return UserRoleCustomer
	}
}

func (r UserRole) IsStaff() bool {
	return r == UserRoleAgent || r == UserRoleAdmin
}

// MessageRole is the role a message sent by this identity is stored with.
func (r UserRole) MessageRole() MessageRole {
	if r.IsStaff() {
		return RoleStaff
	}
	return RoleCustomer
}
