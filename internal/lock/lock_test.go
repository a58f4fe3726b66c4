package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileLock_TryLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "session.lock")

	fl := NewFileLock(lockPath)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer fl.Unlock()

	pid, err := ReadPID(lockPath)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
}

func TestFileLock_DoubleLockRejected(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "session.lock")

	fl1 := NewFileLock(lockPath)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	defer fl1.Unlock()

	fl2 := NewFileLock(lockPath)
	err := fl2.TryLock()
	if err == nil {
		fl2.Unlock()
		t.Fatal("second TryLock should fail while the first holds the lock")
	}
	if !errors.Is(err, ErrHeld) {
		t.Errorf("err = %v, want ErrHeld", err)
	}
}

func TestFileLock_RelockAfterUnlock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "session.lock")

	fl1 := NewFileLock(lockPath)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if err := fl1.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed after Unlock, stat err = %v", err)
	}

	fl2 := NewFileLock(lockPath)
	if err := fl2.TryLock(); err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	defer fl2.Unlock()
}

func TestFileLock_UnlockIdempotent(t *testing.T) {
	fl := NewFileLock(filepath.Join(t.TempDir(), "session.lock"))
	if err := fl.Unlock(); err != nil {
		t.Errorf("Unlock on unheld lock: %v", err)
	}
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if err := fl.TryLock(); err != nil {
		t.Errorf("TryLock while already held by the same FileLock: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Errorf("Unlock: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Errorf("second Unlock: %v", err)
	}
}

func TestReadPID_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.lock")
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPID(path); err == nil {
		t.Error("expected parse error")
	}
}
