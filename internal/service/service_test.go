package service

import (
	"context"
	"testing"
	"time"

	"spacesaver/internal/config"
	"spacesaver/internal/testsupport"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.RescanIntervalS = 3600
	cfg.Workflow.WakeupFloorS = 1
	return cfg
}

func TestNewOpensCatalog(t *testing.T) {
	svc, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer svc.Close()
	if svc.Store() == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestStartAcquiresLockAndStopReleasesIt(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := svc.Start(ctx); err == nil {
		t.Fatal("expected second Start on the same running service to fail")
	}

	svc.Stop()

	second, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new second: %v", err)
	}
	defer second.Close()
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	if err := second.Start(ctx2); err != nil {
		t.Fatalf("expected lock to be released after Stop, start failed: %v", err)
	}
	second.Stop()
}

func TestStopIsSafeWithoutStart(t *testing.T) {
	svc, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer svc.Close()
	svc.Stop()
}

func TestStartThenContextCancelShutsDown(t *testing.T) {
	svc, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	time.Sleep(50 * time.Millisecond)
	svc.Stop()
}
