package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonwang1/registercenter/internal/engine"
	"github.com/jasonwang1/registercenter/internal/lock"
	"github.com/jasonwang1/registercenter/internal/model"
	"github.com/jasonwang1/registercenter/internal/propagate"
	"github.com/jasonwang1/registercenter/internal/rpcerr"
	"github.com/jasonwang1/registercenter/internal/store"
	"github.com/jasonwang1/registercenter/pkg/metrics"
)

const group = "g1"

type fakeOutbound struct {
	helloFails map[string]bool
	notified   []string
}

func (f *fakeOutbound) Hello(ctx context.Context, addr string) error {
	if f.helloFails[addr] {
		return errors.New("hello failed")
	}
	return nil
}

func (f *fakeOutbound) Notify(ctx context.Context, addr string, changed model.ServiceInstance) error {
	f.notified = append(f.notified, addr)
	return nil
}

func setupTestFacade(t *testing.T) (*Facade, *fakeOutbound) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	reg := metrics.NewRegistry("test_rpc_" + t.Name())
	stores, err := store.NewManager(
		[]store.RedisConn{{Name: "main", Addr: mr.Addr()}},
		map[string]string{group: "main"},
		reg.Store(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	eng := engine.New(lock.NewManager(nil, reg.Lock()), nil, reg.Engine())
	client := &fakeOutbound{helloFails: map[string]bool{}}
	prop := propagate.New(stores, eng, client, nil, nil, reg.Propagate())

	return New(stores, eng, prop, nil, nil), client
}

func pingableInst(addr string, serviceType int, status model.Status, rely ...model.RelyEntry) model.ServiceInstance {
	return model.ServiceInstance{
		Addr: addr, ServiceType: serviceType, Semver: "1.0.0",
		GroupTab: group, Status: status, ConnectMode: model.ConnectModeGRPC,
		RelyList: rely,
	}
}

// End-to-end scenario 1: Register then subsequent Ping refreshes the
// heartbeat without re-triggering a status-change fan-out.
func TestFacade_RegisterThenPing(t *testing.T) {
	f, client := setupTestFacade(t)
	ctx := context.Background()

	dep := pingableInst("b", 5, model.StatusOnline)
	_, err := f.Register(ctx, dep)
	require.NoError(t, err)

	in := pingableInst("a", 9, model.StatusRegister, model.RelyEntry{Type: 5, Semver: "1.0.0"})
	watch, err := f.Register(ctx, in)
	require.NoError(t, err)
	require.Len(t, watch, 1)
	assert.Equal(t, 5, watch[0].ServiceType)
	require.Len(t, watch[0].Services, 1)
	assert.Equal(t, "b", watch[0].Services[0].Addr)

	require.NoError(t, f.Ping(ctx, in))
	assert.Empty(t, client.notified, "a register->register ping must not fan out")
}

// End-to-end scenario 2: a genuine status change (Online) fans out to
// dependents without any client-supplied flag — the is_notify regression.
func TestFacade_OnlineFansOutOnRealStatusChangeWithNoClientFlag(t *testing.T) {
	f, client := setupTestFacade(t)
	ctx := context.Background()

	dep := pingableInst("dep", 9, model.StatusOnline, model.RelyEntry{Type: 5, Semver: "1.0.0"})
	_, err := f.Register(ctx, dep)
	require.NoError(t, err)

	origin := pingableInst("origin", 5, model.StatusRegister)
	_, err = f.Register(ctx, origin)
	require.NoError(t, err)

	online := origin
	online.Status = model.StatusOnline
	_, err = f.Online(ctx, online)
	require.NoError(t, err)

	f.propagator.DrainChanges(ctx)

	assert.Contains(t, client.notified, "dep", "a genuine status change must fan out to dependents without any client-supplied notify flag")
}

// End-to-end scenario 3: a type change cleans up the old type-addr index.
func TestFacade_TypeChangeCleansOldIndex(t *testing.T) {
	f, _ := setupTestFacade(t)
	ctx := context.Background()

	in := pingableInst("a", 5, model.StatusOnline)
	_, err := f.Register(ctx, in)
	require.NoError(t, err)

	reclassified := in
	reclassified.ServiceType = 7
	_, err = f.Online(ctx, reclassified)
	require.NoError(t, err)

	st, err := f.stores.ForGroup(group)
	require.NoError(t, err)
	oldMembers, err := st.SetScanAll(ctx, "sm_service_type_addr_list_"+group+"_5")
	require.NoError(t, err)
	assert.NotContains(t, oldMembers, "a")

	newMembers, err := st.SetScanAll(ctx, "sm_service_type_addr_list_"+group+"_7")
	require.NoError(t, err)
	assert.Contains(t, newMembers, "a")
}

// End-to-end scenario 6: Check detects drift between the caller's cached
// watch_list and the authoritative store state.
func TestFacade_CheckDetectsDrift(t *testing.T) {
	f, _ := setupTestFacade(t)
	ctx := context.Background()

	dep := pingableInst("b", 5, model.StatusOnline)
	watch, err := f.Register(ctx, dep)
	require.NoError(t, err)
	require.Empty(t, watch)

	in := pingableInst("a", 9, model.StatusOnline, model.RelyEntry{Type: 5, Semver: "1.0.0"})
	claimed, err := f.Register(ctx, in)
	require.NoError(t, err)

	passed, corrected, err := f.Check(ctx, in, claimed)
	require.NoError(t, err)
	assert.True(t, passed)
	assert.Nil(t, corrected)

	// A new instance of the depended-on type joins; the caller's cached
	// watch_list is now stale.
	third := pingableInst("c", 5, model.StatusOnline)
	_, err = f.Register(ctx, third)
	require.NoError(t, err)

	passed, corrected, err = f.Check(ctx, in, claimed)
	require.NoError(t, err)
	assert.False(t, passed)
	require.Len(t, corrected, 1)
	assert.Len(t, corrected[0].Services, 2)
}

func TestFacade_Register_MissingAddrIsFieldMissing(t *testing.T) {
	f, _ := setupTestFacade(t)
	_, err := f.Register(context.Background(), model.ServiceInstance{GroupTab: group})
	var rpcErr *rpcerr.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpcerr.KindFieldMissing, rpcErr.Kind)
}

func TestFacade_Register_UnknownGroup(t *testing.T) {
	f, _ := setupTestFacade(t)
	in := pingableInst("a", 5, model.StatusOnline)
	in.GroupTab = "unconfigured"
	_, err := f.Register(context.Background(), in)
	var rpcErr *rpcerr.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpcerr.KindUnknownGroup, rpcErr.Kind)
}

func TestFacade_Hello(t *testing.T) {
	f, _ := setupTestFacade(t)
	result, err := f.Hello(context.Background(), "10.0.0.1:7000")
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}
