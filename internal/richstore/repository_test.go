package richstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/certen-labs/chainindexer/internal/model"
)

var testClient *Client

func TestMain(m *testing.M) {
	url := os.Getenv("CHAININDEXER_TEST_DB")
	if url == "" {
		os.Exit(0)
	}

	var err error
	testClient, err = Open(Config{URL: url})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := testClient.MigrateUp(ctx); err != nil {
		panic("failed to migrate test database: " + err.Error())
	}

	code := m.Run()
	testClient.Close()
	os.Exit(code)
}

func TestPutBlockBatchAndRollback(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}
	repo := NewRepository(testClient)
	ctx := context.Background()
	chain := "repo-test-chain"

	blk := &model.Block{
		Chain: chain, Height: 1, Hash: "0xaaa", ParentHash: "0x000",
		Status: model.StatusConfirmed, Timestamp: time.Now().UTC(),
		Events: []model.Event{{
			Chain: chain, BlockRef: 1, TxRef: "0xtx1", LogIndex: 0,
			EventType: "Transfer", DeterminismClass: model.DeterministicClass,
			Timestamp: time.Now().UTC(),
		}},
	}

	tx, err := testClient.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := repo.PutBlockBatch(ctx, tx, blk); err != nil {
		t.Fatalf("PutBlockBatch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	keys, err := repo.BlockKeySet(ctx, chain)
	if err != nil {
		t.Fatalf("BlockKeySet: %v", err)
	}
	if keys[1] != "0xaaa" {
		t.Errorf("BlockKeySet[1] = %q, want 0xaaa", keys[1])
	}

	tx2, err := testClient.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := repo.DeleteFrom(ctx, tx2, chain, 1); err != nil {
		t.Fatalf("DeleteFrom: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	keys, err = repo.BlockKeySet(ctx, chain)
	if err != nil {
		t.Fatalf("BlockKeySet after delete: %v", err)
	}
	if _, ok := keys[1]; ok {
		t.Error("expected block 1 to be removed after DeleteFrom")
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	if testClient == nil {
		t.Skip("test database not configured")
	}
	repo := NewRepository(testClient)
	ctx := context.Background()

	msg := &model.CrossChainMessage{
		ID: "repo-test-msg-1", SourceChain: "src", TargetChain: "dst",
		Nonce: "1", Sender: "0xsender", Recipient: "0xrecipient",
		Status: model.MessageOriginated, CreatedAt: time.Now().UTC(),
	}
	if err := repo.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}
	if err := repo.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("UpsertMessage (repeat): %v", err)
	}

	got, err := repo.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Status != model.MessageOriginated {
		t.Errorf("Status = %q, want %q", got.Status, model.MessageOriginated)
	}
}
