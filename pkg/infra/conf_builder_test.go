package infra

import (
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRedisOptionsFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		dbType  DBType
		env     map[string]interface{}
		wantErr bool
		check   func(t *testing.T, addrs []string, master string)
	}{
		{
			name:   "standalone",
			dbType: DBTypeRedisStandalone,
			env: map[string]interface{}{
				"R_1_ADDR":                "localhost:6379",
				"R_1_READ_TIMEOUT_IN_MS":  "50",
				"R_1_WRITE_TIMEOUT_IN_MS": "60",
			},
			check: func(t *testing.T, addrs []string, master string) {
				assert.Equal(t, []string{"localhost:6379"}, addrs)
				assert.Empty(t, master)
			},
		},
		{
			name:   "failover",
			dbType: DBTypeRedisFailover,
			env: map[string]interface{}{
				"R_1_MASTER_NAME":         "mymaster",
				"R_1_SENTINEL_ADDRESSES":  "s1:26379, s2:26379",
				"R_1_READ_TIMEOUT_IN_MS":  "50",
				"R_1_WRITE_TIMEOUT_IN_MS": "60",
			},
			check: func(t *testing.T, addrs []string, master string) {
				assert.Equal(t, []string{"s1:26379", "s2:26379"}, addrs)
				assert.Equal(t, "mymaster", master)
			},
		},
		{
			name:   "cluster",
			dbType: DBTypeRedisCluster,
			env: map[string]interface{}{
				"R_1_ADDRESSES":           "n1:7000,n2:7000,n3:7000",
				"R_1_READ_TIMEOUT_IN_MS":  "50",
				"R_1_WRITE_TIMEOUT_IN_MS": "60",
			},
			check: func(t *testing.T, addrs []string, master string) {
				assert.Len(t, addrs, 3)
			},
		},
		{
			name:   "missing timeouts",
			dbType: DBTypeRedisStandalone,
			env: map[string]interface{}{
				"R_1_ADDR": "localhost:6379",
			},
			wantErr: true,
		},
		{
			name:   "missing addr",
			dbType: DBTypeRedisStandalone,
			env: map[string]interface{}{
				"R_1_READ_TIMEOUT_IN_MS":  "50",
				"R_1_WRITE_TIMEOUT_IN_MS": "60",
			},
			wantErr: true,
		},
		{
			name:   "not redis",
			dbType: DBTypeScylla,
			env: map[string]interface{}{
				"R_1_READ_TIMEOUT_IN_MS":  "50",
				"R_1_WRITE_TIMEOUT_IN_MS": "60",
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			for k, v := range tt.env {
				viper.Set(k, v)
			}
			opts, err := BuildRedisOptionsFromEnv(tt.dbType, "R_1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 50*time.Millisecond, opts.ReadTimeout)
			assert.Equal(t, 60*time.Millisecond, opts.WriteTimeout)
			tt.check(t, opts.Addrs, opts.MasterName)

			client, err := NewRedisClient(tt.dbType, opts)
			require.NoError(t, err)
			assert.NoError(t, client.Close())
		})
	}
}

func TestBuildRedisOptionsFromEnv_PoolSettings(t *testing.T) {
	viper.Reset()
	viper.Set("R_2_ADDR", "localhost:6379")
	viper.Set("R_2_READ_TIMEOUT_IN_MS", "10")
	viper.Set("R_2_WRITE_TIMEOUT_IN_MS", "10")
	viper.Set("R_2_POOL_SIZE", "32")
	viper.Set("R_2_MIN_IDLE_CONN", "4")
	viper.Set("R_2_CONN_MAX_AGE_IN_MINUTES", "5")
	viper.Set("R_2_DB", "3")

	opts, err := BuildRedisOptionsFromEnv(DBTypeRedisStandalone, "R_2")
	require.NoError(t, err)
	assert.Equal(t, 32, opts.PoolSize)
	assert.Equal(t, 4, opts.MinIdleConns)
	assert.Equal(t, 5*time.Minute, opts.ConnMaxLifetime)
	assert.Equal(t, 3, opts.Simple().DB)
}

func TestBuildClusterConfigFromEnv(t *testing.T) {
	viper.Reset()
	viper.Set("S_1_CONTACT_POINTS", "10.0.0.1,10.0.0.2")
	viper.Set("S_1_PORT", "9042")
	viper.Set("S_1_KEYSPACE", "features")
	viper.Set("S_1_TIMEOUT_IN_MS", "200")
	viper.Set("S_1_CONSISTENCY", "LOCAL_QUORUM")

	cfg, err := BuildClusterConfigFromEnv("S_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Hosts)
	assert.Equal(t, 9042, cfg.Port)
	assert.Equal(t, "features", cfg.Keyspace)
	assert.Equal(t, 200*time.Millisecond, cfg.Timeout)
	assert.Equal(t, gocql.LocalQuorum, cfg.Consistency)
	assert.Nil(t, cfg.Authenticator)

	viper.Set("S_1_CONSISTENCY", "SOMETIMES")
	_, err = BuildClusterConfigFromEnv("S_1")
	assert.Error(t, err)

	viper.Reset()
	viper.Set("S_1_CONTACT_POINTS", "10.0.0.1")
	_, err = BuildClusterConfigFromEnv("S_1")
	assert.Error(t, err)
}

func TestBuildInMemoryCacheConfFromEnv(t *testing.T) {
	viper.Reset()
	viper.Set("C_1_ENABLED", "true")
	viper.Set("C_1_NAME", "views")
	viper.Set("C_1_SIZE_IN_BYTES", "1048576")

	conf, err := BuildInMemoryCacheConfFromEnv("C_1")
	require.NoError(t, err)
	assert.True(t, conf.Enabled)
	assert.Equal(t, "views", conf.Name)
	assert.Equal(t, 1048576, conf.SizeInBytes)

	viper.Set("C_1_SIZE_IN_BYTES", "1024")
	_, err = BuildInMemoryCacheConfFromEnv("C_1")
	assert.Error(t, err)

	viper.Reset()
	_, err = BuildInMemoryCacheConfFromEnv("C_1")
	assert.Error(t, err)
}

func TestConnectors(t *testing.T) {
	c := newConnectors(DBTypeInMemory)
	_, err := c.GetConnection(7)
	assert.Error(t, err)

	conn := &InMemoryCacheConnection{Meta: map[string]interface{}{"configId": 7}}
	c.add(7, conn)
	got, err := c.GetConnection(7)
	require.NoError(t, err)
	assert.Same(t, conn, got)
	assert.Equal(t, []int{7}, c.ConfigIds())
	assert.False(t, got.IsLive())

	connector, err := GetConnector(DBTypeRedisCluster)
	require.NoError(t, err)
	assert.Same(t, RedisCluster, connector)
	_, err = GetConnector("mongo")
	assert.Error(t, err)
}
