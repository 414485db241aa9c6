package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registrycenter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfigFile(t, `
redis_list:
  - name: main
    addr: 127.0.0.1:6379
group_list:
  - group_tab: default
    redis_name: main
lark_webhook: https://open.larksuite.com/hook/abc
rely_warning_switch: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.RedisList[0].Name)
	assert.Equal(t, "main", cfg.GroupMap()["default"])
	assert.True(t, cfg.RelyWarningSwitch)
	assert.Equal(t, 30, cfg.Lock.MaxRetries)
	assert.Equal(t, "0.0.0.0", cfg.Server.BindIP)
}

func TestLoad_MissingRedisList(t *testing.T) {
	path := writeConfigFile(t, `
group_list:
  - group_tab: default
    redis_name: main
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_GroupBoundToUnknownRedis(t *testing.T) {
	path := writeConfigFile(t, `
redis_list:
  - name: main
    addr: 127.0.0.1:6379
group_list:
  - group_tab: default
    redis_name: other
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestStore_ReplaceIsVisibleAndDoubleBuffered(t *testing.T) {
	first := &Config{RedisList: []RedisConn{{Name: "a", Addr: "x"}}}
	store := NewStore(first)
	assert.Same(t, first, store.Current())

	second := &Config{RedisList: []RedisConn{{Name: "b", Addr: "y"}}}
	store.Replace(second)
	assert.Same(t, second, store.Current())

	third := &Config{RedisList: []RedisConn{{Name: "c", Addr: "z"}}}
	store.Replace(third)
	assert.Same(t, third, store.Current())
	assert.NotSame(t, second, store.Current())
}

func TestStore_ReloadFromKeepsPreviousSnapshotOnError(t *testing.T) {
	good := writeConfigFile(t, `
redis_list:
  - name: main
    addr: 127.0.0.1:6379
`)
	cfg, err := Load(good)
	require.NoError(t, err)
	store := NewStore(cfg)

	bad := writeConfigFile(t, `group_list: [{group_tab: x, redis_name: missing}]`)
	_, err = store.ReloadFrom(bad)
	require.Error(t, err)
	assert.Same(t, cfg, store.Current())
}
