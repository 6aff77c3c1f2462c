package custody

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/chain/chaintest"
	"github.com/JPCompany544/arbix-sub001/pkg/config"
	"github.com/JPCompany544/arbix-sub001/pkg/custodystore"
	"github.com/JPCompany544/arbix-sub001/pkg/events"
	"github.com/JPCompany544/arbix-sub001/pkg/keys"
	"github.com/JPCompany544/arbix-sub001/pkg/nonce"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func testConfig() *config.Config {
	return &config.Config{
		Monitoring: config.MonitoringConfig{Enabled: true},
		Chains: config.ChainsConfig{
			BTC: config.BitcoinConfig{Enabled: true, APIURL: "http://127.0.0.1:1", Network: "mainnet", FeeSats: 2000},
			SOL: config.SolanaConfig{Enabled: true, RPCURL: "http://127.0.0.1:1"},
			XRP: config.XRPConfig{Enabled: true, RPCURL: "http://127.0.0.1:1", FeeDrops: 12, SweepDestination: "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"},
		},
		Sweep:    config.SweepConfig{ScheduleEnabled: true, Interval: time.Hour, InitiatedBy: "scheduler"},
		Treasury: config.TreasuryConfig{SyncInterval: time.Minute},
		Deposit:  config.DepositConfig{BaselineTimeout: time.Second},
	}
}

func TestBuildAdapters_EnabledChainsOnly(t *testing.T) {
	seed, err := keys.SeedFromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	t.Cleanup(seed.Wipe)

	queue := nonce.NewQueue(time.Minute)
	t.Cleanup(queue.Close)

	cfg := testConfig()
	registry, closeAll, err := buildAdapters(context.Background(), &cfg.Chains, keys.NewDeriver(seed), queue, nonce.NewManager(), zap.NewNop())
	require.NoError(t, err)
	defer closeAll()

	assert.Equal(t, []chain.Chain{chain.BTC, chain.SOL, chain.XRP}, registry.Chains())

	xrpAdapter, err := registry.Get(chain.XRP)
	require.NoError(t, err)
	assert.Equal(t, chain.ModeShared, xrpAdapter.Mode())

	_, err = registry.Get(chain.ETH)
	assert.ErrorIs(t, err, chain.ErrUnsupportedChain)
}

func TestBuildAdapters_NoneEnabled(t *testing.T) {
	queue := nonce.NewQueue(time.Minute)
	t.Cleanup(queue.Close)

	_, _, err := buildAdapters(context.Background(), &config.ChainsConfig{}, nil, queue, nonce.NewManager(), zap.NewNop())
	assert.Error(t, err)
}

func TestSweepDestinations(t *testing.T) {
	cfg := testConfig()
	cfg.Chains.BTC.SweepDestination = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"

	got := sweepDestinations(&cfg.Chains)
	assert.Equal(t, map[chain.Chain]string{
		chain.BTC: "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",
		chain.XRP: "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh",
	}, got)
}

func TestNewScheduler_RegistersJobs(t *testing.T) {
	registry := chain.NewRegistry(chaintest.NewAdapter(chain.ETH), chaintest.NewAdapter(chain.XRP))

	tests := []struct {
		name     string
		schedule bool
		want     []string
	}{
		{name: "sweeps enabled", schedule: true, want: []string{"treasury-sync", "sweep-ETH"}},
		{name: "sweeps disabled", schedule: false, want: []string{"treasury-sync"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Sweep.ScheduleEnabled = tt.schedule
			engine := NewEngine(cfg, custodystore.NewMemoryStore(), registry, events.NopPublisher{}, zap.NewNop())

			sched, err := newScheduler(context.Background(), cfg, engine, zap.NewNop())
			require.NoError(t, err)
			defer func() { _ = sched.Shutdown() }()

			var names []string
			for _, j := range sched.Jobs() {
				names = append(names, j.Name())
			}
			assert.ElementsMatch(t, tt.want, names)
		})
	}
}

func TestRouter(t *testing.T) {
	s := NewServer(testConfig())
	var ready atomic.Bool
	router := s.newRouter(&ready, zap.NewNop())

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready").Code)

	ready.Store(true)
	rec := get("/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", rec.Body.String())

	assert.Equal(t, http.StatusOK, get("/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/v1/transfers").Code)
}

func TestRun_NilConfig(t *testing.T) {
	assert.Error(t, NewServer(nil).Run())
}

func TestRun_SeedFailureReturnsError(t *testing.T) {
	cfg := testConfig()
	cfg.Logging = config.LoggingConfig{Level: "error", Format: "json", OutputPath: filepath.Join(t.TempDir(), "custody.log")}
	cfg.Secrets = config.SecretsConfig{Provider: "vault"}

	err := NewServer(cfg).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load master seed")
	assert.Contains(t, err.Error(), `unknown secret provider "vault"`)
}
