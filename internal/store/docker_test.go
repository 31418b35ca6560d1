package store

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/testutil"
)

// TestMinioContainerRoundTrip starts a real MinIO container and exercises the
// full store path: container lifecycle, bucket creation, and object CRUD.
// Skipped when Docker is unavailable.
func TestMinioContainerRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	_ = testutil.DockerClient(t)

	port, err := testutil.FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}

	mgr, err := NewDockerManager(DockerConfig{
		ContainerName: testutil.UniqueContainerName(t, "minio"),
		DataPath:      t.TempDir(),
		HostPort:      port,
		AccessKey:     "testadmin",
		SecretKey:     "testadmin-secret",
		Labels:        testutil.ContainerLabels(t),
	})
	if err != nil {
		t.Fatalf("failed to create docker manager: %v", err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("failed to start minio: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		_ = mgr.Remove(stopCtx)
	}()

	if err := mgr.WaitReady(ctx, 2*time.Minute); err != nil {
		t.Fatalf("minio never became ready: %v", err)
	}

	accessKey, secretKey := mgr.Credentials()
	cs, err := NewMinioStore(ctx, MinioConfig{
		Endpoint:  mgr.Endpoint(),
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    "test-documents",
	})
	if err != nil {
		t.Fatalf("failed to create minio store: %v", err)
	}

	key := "documents/test/abc123.pdf"
	payload := []byte("%PDF-1.4 test payload")

	if err := cs.Put(ctx, key, payload, "application/pdf"); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := cs.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}

	// Put is idempotent: same key, new content wins
	updated := []byte("%PDF-1.4 updated payload")
	if err := cs.Put(ctx, key, updated, "application/pdf"); err != nil {
		t.Fatalf("second put failed: %v", err)
	}
	got, err = cs.Get(ctx, key)
	if err != nil {
		t.Fatalf("get after overwrite failed: %v", err)
	}
	if !bytes.Equal(got, updated) {
		t.Error("overwrite did not replace object content")
	}

	if err := cs.Delete(ctx, key); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := cs.Get(ctx, key); err == nil {
		t.Error("expected error getting deleted object")
	}

	// Deleting a missing key is not an error
	if err := cs.Delete(ctx, key); err != nil {
		t.Errorf("delete of missing key should be a no-op, got %v", err)
	}

	status, err := mgr.Status(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status != StatusRunning {
		t.Errorf("expected running status, got %s", status)
	}
}
