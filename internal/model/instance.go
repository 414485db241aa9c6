// Package model holds the domain types shared by the registry coordination
// plane: the service instance record, its lifecycle status, and the
// dependency descriptors it carries.
package model

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a service instance.
type Status int

const (
	StatusUnknown  Status = 0
	StatusRegister Status = 1
	StatusOnline   Status = 2
	StatusOffline  Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusRegister:
		return "register"
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// ConnectMode tells the propagator whether an instance can be reached
// directly with a Hello/Notify probe.
type ConnectMode int

const (
	ConnectModeNone ConnectMode = 0
	ConnectModeGRPC ConnectMode = 1
)

func (c ConnectMode) String() string {
	switch c {
	case ConnectModeGRPC:
		return "grpc"
	default:
		return "none"
	}
}

// Pingable reports whether instances using this connect mode accept direct
// Hello/Notify RPCs from the propagator.
func (c ConnectMode) Pingable() bool {
	return c == ConnectModeGRPC
}

// RelyEntry names one (service type, minimum semver) dependency.
type RelyEntry struct {
	Type   int    `json:"rely_service_type"`
	Semver string `json:"rely_semver"`
}

// ServiceInstance is the record the registry stores per (group_tab, addr).
type ServiceInstance struct {
	Addr          string      `json:"addr"`
	HostName      string      `json:"host_name"`
	Status        Status      `json:"status"`
	ServiceType   int         `json:"service_type"`
	Semver        string      `json:"semver"`
	ServiceWeight int         `json:"service_weight"`
	ConnectMode   ConnectMode `json:"connect_mode"`
	GroupTab      string      `json:"group_tab"`
	ServiceName   string      `json:"service_name"`
	Nickname      string      `json:"nickname"`
	RelyList      []RelyEntry `json:"rely_list"`
}

// Clone returns a deep copy so callers can mutate without aliasing the
// caller's rely_list slice.
func (s ServiceInstance) Clone() ServiceInstance {
	out := s
	if s.RelyList != nil {
		out.RelyList = make([]RelyEntry, len(s.RelyList))
		copy(out.RelyList, s.RelyList)
	}
	return out
}

// MarshalRecord serializes the instance for storage in the info hash.
func (s ServiceInstance) MarshalRecord() ([]byte, error) {
	return json.Marshal(s)
}

// ParseRecord deserializes a stored info-hash value.
func ParseRecord(data []byte) (ServiceInstance, error) {
	var s ServiceInstance
	if err := json.Unmarshal(data, &s); err != nil {
		return ServiceInstance{}, fmt.Errorf("parse service record: %w", err)
	}
	return s, nil
}

// RelySetEqual compares two rely_list values as unordered sets of
// (type, semver) pairs, matching the original implementation's use of an
// unordered_map keyed by rely_service_type (duplicate types collapse).
func RelySetEqual(a, b []RelyEntry) bool {
	return relyMap(a).equal(relyMap(b))
}

type relySet map[int]string

func relyMap(entries []RelyEntry) relySet {
	m := make(relySet, len(entries))
	for _, e := range entries {
		m[e.Type] = e.Semver
	}
	return m
}

func (a relySet) equal(b relySet) bool {
	if len(a) != len(b) {
		return false
	}
	for t, v := range a {
		if bv, ok := b[t]; !ok || bv != v {
			return false
		}
	}
	return true
}
