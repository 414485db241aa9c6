// Package rpc implements the RPC facade: the single entry point that maps
// the six request kinds (Hello, Register, Online, Offline, Ping, Check)
// onto the registry engine and change propagator, grounded on
// RegisterCenter::OnHello/OnRegister/OnOnline/OnOffline/OnPing/OnCheck.
package rpc

import "github.com/jasonwang1/registercenter/internal/model"

// RelyEntry is the wire shape of one rely_list element.
type RelyEntry struct {
	RelyServiceType int    `json:"rely_service_type"`
	RelySemver      string `json:"rely_semver"`
}

// ServiceInfo is the wire shape of a service instance, field names matching
// the proto-ish schema in SPEC_FULL.md §6.
type ServiceInfo struct {
	Addr          string      `json:"addr"`
	HostName      string      `json:"host_name"`
	Status        int         `json:"status"`
	ServiceType   int         `json:"service_type"`
	Semver        string      `json:"semver"`
	ServiceWeight int         `json:"service_weight"`
	ConnectMode   int         `json:"connect_mode"`
	GroupTab      string      `json:"group_tab"`
	ServiceName   string      `json:"service_name"`
	Nickname      string      `json:"nickname"`
	RelyList      []RelyEntry `json:"rely_list"`
}

// ToWire converts a domain ServiceInstance to its wire representation, for
// use by transport bindings outside this package (e.g. the outbound RPC
// client building a Notify payload).
func ToWire(inst model.ServiceInstance) ServiceInfo {
	return toWire(inst)
}

func toWire(inst model.ServiceInstance) ServiceInfo {
	rely := make([]RelyEntry, 0, len(inst.RelyList))
	for _, r := range inst.RelyList {
		rely = append(rely, RelyEntry{RelyServiceType: r.Type, RelySemver: r.Semver})
	}
	return ServiceInfo{
		Addr:          inst.Addr,
		HostName:      inst.HostName,
		Status:        int(inst.Status),
		ServiceType:   inst.ServiceType,
		Semver:        inst.Semver,
		ServiceWeight: inst.ServiceWeight,
		ConnectMode:   int(inst.ConnectMode),
		GroupTab:      inst.GroupTab,
		ServiceName:   inst.ServiceName,
		Nickname:      inst.Nickname,
		RelyList:      rely,
	}
}

// FromWire converts a wire ServiceInfo to the domain ServiceInstance, for
// use by transport bindings outside this package.
func FromWire(w ServiceInfo) model.ServiceInstance {
	return fromWire(w)
}

func fromWire(w ServiceInfo) model.ServiceInstance {
	rely := make([]model.RelyEntry, 0, len(w.RelyList))
	for _, r := range w.RelyList {
		rely = append(rely, model.RelyEntry{Type: r.RelyServiceType, Semver: r.RelySemver})
	}
	return model.ServiceInstance{
		Addr:          w.Addr,
		HostName:      w.HostName,
		Status:        model.Status(w.Status),
		ServiceType:   w.ServiceType,
		Semver:        w.Semver,
		ServiceWeight: w.ServiceWeight,
		ConnectMode:   model.ConnectMode(w.ConnectMode),
		GroupTab:      w.GroupTab,
		ServiceName:   w.ServiceName,
		Nickname:      w.Nickname,
		RelyList:      rely,
	}
}

// WatchEntry groups every known instance of one service type, the shape
// GetMultiServiceList returns for a watch_list reply.
type WatchEntry struct {
	ServiceType int           `json:"service_type"`
	Services    []ServiceInfo `json:"service_list"`
}

// HelloRequest carries the caller's self-identification string, matching
// UnifiedClient::Hello's "The hello is service manager from <addr>" probe
// body in reverse (here, the probed side answers it).
type HelloRequest struct {
	From string `json:"from"`
}

// HelloResponse echoes "ok" on success, matching the original's
// lower-cased "ok" response-body check.
type HelloResponse struct {
	Result string `json:"result"`
}

// RegisterRequest is the wire body for a Register call.
type RegisterRequest struct {
	ServiceInfo ServiceInfo `json:"service_info"`
}

// RegisterResponse carries the dependency watch list built from the
// caller's declared rely_list.
type RegisterResponse struct {
	WatchList []WatchEntry `json:"watch_list"`
}

// OnlineRequest is the wire body for an Online call.
type OnlineRequest struct {
	ServiceInfo ServiceInfo `json:"service_info"`
}

// OnlineResponse carries the dependency watch list, same shape as Register.
type OnlineResponse struct {
	WatchList []WatchEntry `json:"watch_list"`
}

// OfflineRequest is the wire body for an Offline call.
type OfflineRequest struct {
	ServiceInfo ServiceInfo `json:"service_info"`
}

// OfflineResponse has no payload beyond the envelope result code.
type OfflineResponse struct{}

// PingRequest is the wire body for a Ping heartbeat call.
type PingRequest struct {
	ServiceInfo ServiceInfo `json:"service_info"`
}

// PingResponse has no payload beyond the envelope result code.
type PingResponse struct{}

// CheckRequest carries the caller's locally cached watch_list for
// coverage verification.
type CheckRequest struct {
	ServiceInfo ServiceInfo  `json:"service_info"`
	WatchList   []WatchEntry `json:"watch_list"`
}

// CheckResponse reports whether the caller's watch_list matched the
// authoritative one; on mismatch, WatchList carries the corrected one.
type CheckResponse struct {
	IsPassed  bool         `json:"is_passed"`
	WatchList []WatchEntry `json:"watch_list,omitempty"`
}
