// Package domain contains entity without logic, just meta-data
package domain

// Identity is the opaque unique name of a call participant.
type Identity string

type Role int

const (
	RoleLocal Role = iota
	RoleRemote
)

func (r Role) String() string {
	if r == RoleLocal {
		return "local"
	}
	return "remote"
}
