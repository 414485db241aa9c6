package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonwang1/registercenter/internal/keys"
	"github.com/jasonwang1/registercenter/internal/lock"
	"github.com/jasonwang1/registercenter/internal/model"
	"github.com/jasonwang1/registercenter/internal/store"
	"github.com/jasonwang1/registercenter/pkg/metrics"
)

func setupTestEngine(t *testing.T) (*Engine, store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	reg := metrics.NewRegistry("test_engine_" + t.Name())
	st := store.NewRedisStore(client, reg.Store())
	locks := lock.NewManager(nil, reg.Lock())
	return New(locks, nil, reg.Engine()), st, mr
}

const group = "g1"

func registerInst(addr string, serviceType int, status model.Status, rely ...model.RelyEntry) model.ServiceInstance {
	return model.ServiceInstance{
		Addr:        addr,
		ServiceType: serviceType,
		Semver:      "1.0.0",
		GroupTab:    group,
		Status:      status,
		RelyList:    rely,
	}
}

// Invariant 1: addr is in AddrList[group, S.service_type] iff S exists.
func TestRefresh_Invariant_AddrListMembershipTracksServiceType(t *testing.T) {
	eng, st, _ := setupTestEngine(t)
	ctx := context.Background()

	in := registerInst("a", 5, model.StatusRegister)
	_, err := eng.Refresh(ctx, st, group, in)
	require.NoError(t, err)

	members, err := st.SetScanAll(ctx, keys.ServiceTypeAddrList(group, 5))
	require.NoError(t, err)
	assert.Contains(t, members, "a")
}

// Invariant 2: addr is in LevelAddrList[group, t] iff S exists and rely_list
// contains an entry with rely_service_type == t.
func TestRefresh_Invariant_LevelAddrListTracksRelyList(t *testing.T) {
	eng, st, _ := setupTestEngine(t)
	ctx := context.Background()

	in := registerInst("a", 5, model.StatusOnline, model.RelyEntry{Type: 9, Semver: "1.0.0"})
	_, err := eng.Refresh(ctx, st, group, in)
	require.NoError(t, err)

	members, err := st.SetScanAll(ctx, keys.ServiceTypeLevelAddrList(group, 9))
	require.NoError(t, err)
	assert.Contains(t, members, "a")
}

// Invariant 3: PingScore is monotonically non-decreasing over repeated
// refreshes.
func TestRefresh_Invariant_PingScoreMonotonic(t *testing.T) {
	eng, st, mr := setupTestEngine(t)
	ctx := context.Background()

	in := registerInst("a", 5, model.StatusRegister)

	var last float64
	for i := 0; i < 3; i++ {
		_, err := eng.Refresh(ctx, st, group, in)
		require.NoError(t, err)
		score, err := mr.ZScore(keys.ServicePing(group), "a")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, last)
		last = score
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRefresh_RoundTrip_RegisterOfflineReregister(t *testing.T) {
	eng, st, _ := setupTestEngine(t)
	ctx := context.Background()

	x := registerInst("a", 5, model.StatusRegister)
	_, err := eng.Refresh(ctx, st, group, x)
	require.NoError(t, err)

	offline := x
	offline.Status = model.StatusOffline
	_, err = eng.Refresh(ctx, st, group, offline)
	require.NoError(t, err)

	xPrime := registerInst("a", 6, model.StatusRegister)
	xPrime.Semver = "2.0.0"
	_, err = eng.Refresh(ctx, st, group, xPrime)
	require.NoError(t, err)

	raw, exists, err := st.HashGet(ctx, keys.ServiceInfo(group), "a")
	require.NoError(t, err)
	require.True(t, exists)
	stored, err := model.ParseRecord([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, xPrime.Semver, stored.Semver)
	assert.Equal(t, xPrime.ServiceType, stored.ServiceType)

	oldTypeMembers, err := st.SetScanAll(ctx, keys.ServiceTypeAddrList(group, 5))
	require.NoError(t, err)
	assert.NotContains(t, oldTypeMembers, "a")

	newTypeMembers, err := st.SetScanAll(ctx, keys.ServiceTypeAddrList(group, 6))
	require.NoError(t, err)
	assert.Contains(t, newTypeMembers, "a")
}

func TestRefresh_RoundTrip_IdenticalRefreshIsANoopBesidesHeartbeat(t *testing.T) {
	eng, st, _ := setupTestEngine(t)
	ctx := context.Background()

	in := registerInst("a", 5, model.StatusOnline)
	notify, err := eng.Refresh(ctx, st, group, in)
	require.NoError(t, err)
	require.False(t, notify)

	notify, err = eng.Refresh(ctx, st, group, in)
	require.NoError(t, err)
	assert.False(t, notify, "identical refresh must not report a status-change notification")
}

func TestRefresh_RoundTrip_GroupChangeDeletesOldRecord(t *testing.T) {
	eng, st, _ := setupTestEngine(t)
	ctx := context.Background()

	in := registerInst("a", 5, model.StatusRegister)
	_, err := eng.Refresh(ctx, st, group, in)
	require.NoError(t, err)

	moved := in
	moved.GroupTab = "g2"
	_, err = eng.Refresh(ctx, st, "g2", moved)
	require.NoError(t, err)

	_, exists, err := st.HashGet(ctx, keys.ServiceInfo(group), "a")
	require.NoError(t, err)
	assert.False(t, exists, "the old group's record must be removed on a group change")
}

func TestRefresh_NotifyFlag_SetOnlyOnRealStatusChange(t *testing.T) {
	eng, st, _ := setupTestEngine(t)
	ctx := context.Background()

	registered := registerInst("a", 5, model.StatusRegister)
	notify, err := eng.Refresh(ctx, st, group, registered)
	require.NoError(t, err)
	assert.False(t, notify, "register -> register transition must not notify")

	online := registered
	online.Status = model.StatusOnline
	notify, err = eng.Refresh(ctx, st, group, online)
	require.NoError(t, err)
	assert.True(t, notify, "register -> online is a real status change")
}

// Boundary: a Check whose watch_list differs only in service_weight fails —
// covered at the facade layer, exercised here via the stored record diff.
func TestRefresh_ChangedFlag_CoversServiceWeight(t *testing.T) {
	eng, st, _ := setupTestEngine(t)
	ctx := context.Background()

	in := registerInst("a", 5, model.StatusOnline)
	_, err := eng.Refresh(ctx, st, group, in)
	require.NoError(t, err)

	reweighed := in
	reweighed.ServiceWeight = 99
	_, err = eng.Refresh(ctx, st, group, reweighed)
	require.NoError(t, err)

	raw, _, err := st.HashGet(ctx, keys.ServiceInfo(group), "a")
	require.NoError(t, err)
	stored, err := model.ParseRecord([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 99, stored.ServiceWeight)
}

func TestEvict_OnlyTransitionsOnlineOrRegisterToOffline(t *testing.T) {
	eng, st, _ := setupTestEngine(t)
	ctx := context.Background()

	in := registerInst("a", 5, model.StatusOnline)
	_, err := eng.Refresh(ctx, st, group, in)
	require.NoError(t, err)

	notified, inst, err := eng.Evict(ctx, st, group, "a")
	require.NoError(t, err)
	assert.True(t, notified)
	assert.Equal(t, model.StatusOffline, inst.Status)

	// A second eviction of an already-offline instance is a no-op.
	notified, _, err = eng.Evict(ctx, st, group, "a")
	require.NoError(t, err)
	assert.False(t, notified)
}

func TestEvict_MissingAddrIsANoop(t *testing.T) {
	eng, st, _ := setupTestEngine(t)
	ctx := context.Background()

	notified, _, err := eng.Evict(ctx, st, group, "never-registered")
	require.NoError(t, err)
	assert.False(t, notified)
}

// Invariant 4: under concurrent refreshes of the same (group, addr), the
// final stored record equals one of the inputs, never a mixture of fields
// across inputs.
func TestRefresh_Invariant_ConcurrentRefreshesNeverMixFields(t *testing.T) {
	eng, st, _ := setupTestEngine(t)
	ctx := context.Background()

	candidates := []model.ServiceInstance{
		registerInst("a", 5, model.StatusOnline),
		registerInst("a", 7, model.StatusOnline),
	}
	candidates[0].Nickname = "one"
	candidates[1].Nickname = "two"

	done := make(chan struct{}, len(candidates))
	for _, c := range candidates {
		c := c
		go func() {
			defer func() { done <- struct{}{} }()
			_, _ = eng.Refresh(ctx, st, group, c)
		}()
	}
	for range candidates {
		<-done
	}

	raw, exists, err := st.HashGet(ctx, keys.ServiceInfo(group), "a")
	require.NoError(t, err)
	require.True(t, exists)
	stored, err := model.ParseRecord([]byte(raw))
	require.NoError(t, err)

	matchesOne := stored.ServiceType == candidates[0].ServiceType && stored.Nickname == candidates[0].Nickname
	matchesTwo := stored.ServiceType == candidates[1].ServiceType && stored.Nickname == candidates[1].Nickname
	assert.True(t, matchesOne || matchesTwo, "final record must match one whole input, not a mixture")
}
