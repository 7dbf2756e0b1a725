package config

import "testing"

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("CHAINS", "eth-test")
	t.Setenv("CHAIN_ETH_TEST_FAMILY", "evm")
	t.Setenv("CHAIN_ETH_TEST_RPC_URL", "http://localhost:8545")
	t.Setenv("CHAIN_ETH_TEST_CHAIN_ID", "1337")
	t.Setenv("STORAGE_FAST_STORE_PATH", "/tmp/fast")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.FastStorePath != "/tmp/fast" {
		t.Errorf("FastStorePath = %q, want /tmp/fast", cfg.FastStorePath)
	}
	cc, ok := cfg.Chains["eth-test"]
	if !ok {
		t.Fatalf("expected chain eth-test to be configured")
	}
	if cc.Family != FamilyEVM {
		t.Errorf("Family = %q, want evm", cc.Family)
	}
	if cc.RPCURL != "http://localhost:8545" {
		t.Errorf("RPCURL = %q", cc.RPCURL)
	}
	if cc.BatchSize != cfg.BatchSizeDefault {
		t.Errorf("BatchSize = %d, want default %d", cc.BatchSize, cfg.BatchSizeDefault)
	}
}

func TestValidate_RequiresAtLeastOneChain(t *testing.T) {
	cfg := defaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error with no chains configured")
	}
}

func TestValidate_RejectsUnknownFamily(t *testing.T) {
	cfg := defaults()
	cfg.Chains["x"] = ChainConfig{Name: "x", Family: "solana", RPCURL: "http://x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported chain family")
	}
}
