package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen-labs/chainindexer/internal/chainadapter"
	"github.com/certen-labs/chainindexer/internal/faststore"
	"github.com/certen-labs/chainindexer/internal/model"
	"github.com/certen-labs/chainindexer/internal/richstore"
)

var testRichClient *richstore.Client

func TestMain(m *testing.M) {
	url := os.Getenv("CHAININDEXER_TEST_DB")
	if url == "" {
		os.Exit(0)
	}
	var err error
	testRichClient, err = richstore.Open(richstore.Config{URL: url})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := testRichClient.MigrateUp(ctx); err != nil {
		panic("failed to migrate test database: " + err.Error())
	}
	code := m.Run()
	testRichClient.Close()
	os.Exit(code)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	if testRichClient == nil {
		t.Skip("test database not configured")
	}
	fast, err := faststore.Open("test", t.TempDir(), "goleveldb")
	if err != nil {
		t.Fatalf("faststore.Open: %v", err)
	}
	t.Cleanup(func() { fast.Close() })

	walDB, err := dbm.NewDB("wal", dbm.GoLevelDBBackend, t.TempDir())
	if err != nil {
		t.Fatalf("dbm.NewDB: %v", err)
	}
	t.Cleanup(func() { walDB.Close() })

	return NewEngine(fast, testRichClient, walDB)
}

func block(chain string, height uint64, hash, parent string) model.Block {
	return model.Block{
		Chain: chain, Height: height, Hash: hash, ParentHash: parent,
		Status: model.StatusConfirmed, Timestamp: time.Now().UTC(),
		Events: []model.Event{{
			Chain: chain, BlockRef: height, TxRef: hash + "-tx", LogIndex: 0,
			EventType: "Transfer", DeterminismClass: model.DeterministicClass, Timestamp: time.Now().UTC(),
		}},
	}
}

func TestStoreBlockBatchHappyPath(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	chain := "engine-test-1"

	blocks := []model.Block{
		block(chain, 1, "h1", "h0"),
		block(chain, 2, "h2", "h1"),
	}
	if err := e.StoreBlockBatch(ctx, chain, blocks); err != nil {
		t.Fatalf("StoreBlockBatch: %v", err)
	}

	latest, err := e.GetLatestBlock(chain)
	if err != nil {
		t.Fatalf("GetLatestBlock: %v", err)
	}
	if latest != 2 {
		t.Errorf("latest = %d, want 2", latest)
	}

	events, err := e.GetEvents(ctx, chain, 1, 2, "")
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("len(events) = %d, want 2", len(events))
	}
}

func TestStoreBlockBatchDetectsDiscontinuity(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	chain := "engine-test-2"

	if err := e.StoreBlockBatch(ctx, chain, []model.Block{block(chain, 1, "h1", "h0")}); err != nil {
		t.Fatalf("StoreBlockBatch: %v", err)
	}
	err := e.StoreBlockBatch(ctx, chain, []model.Block{block(chain, 2, "h2", "wrong-parent")})
	if !errors.Is(err, model.ErrReorgDetected) {
		t.Errorf("err = %v, want ErrReorgDetected", err)
	}
}

func TestRollbackFrom(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	chain := "engine-test-3"

	blocks := []model.Block{
		block(chain, 1, "h1", "h0"),
		block(chain, 2, "h2", "h1"),
		block(chain, 3, "h3", "h2"),
	}
	if err := e.StoreBlockBatch(ctx, chain, blocks); err != nil {
		t.Fatalf("StoreBlockBatch: %v", err)
	}
	if err := e.RollbackFrom(ctx, chain, 2); err != nil {
		t.Fatalf("RollbackFrom: %v", err)
	}

	latest, err := e.GetLatestBlock(chain)
	if err != nil {
		t.Fatalf("GetLatestBlock: %v", err)
	}
	if latest != 1 {
		t.Errorf("latest = %d, want 1", latest)
	}

	events, err := e.GetEvents(ctx, chain, 1, 3, "")
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("len(events) = %d, want 1", len(events))
	}
}

func TestChangeFeedPublishesOnCommit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	chain := "engine-test-4"

	sub := e.Feed().Subscribe(chainadapter.EventFilter{})
	defer sub.Close()

	if err := e.StoreBlockBatch(ctx, chain, []model.Block{block(chain, 1, "h1", "h0")}); err != nil {
		t.Fatalf("StoreBlockBatch: %v", err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Chain != chain {
			t.Errorf("ev.Chain = %q, want %q", ev.Chain, chain)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
