package config

import "testing"

func TestOpenLockPoolIsSeparateAndBounded(t *testing.T) {
	s := DatabaseSettings{User: "u", Password: "p", Host: "127.0.0.1", Port: "3306", Name: "inventory", LockPoolSize: 3}
	lockDB, err := OpenLockPool(s)
	if err != nil {
		t.Fatalf("OpenLockPool: %v", err)
	}
	defer lockDB.Close()
	if got := lockDB.Stats().MaxOpenConnections; got != 3 {
		t.Fatalf("MaxOpenConnections = %d, want 3", got)
	}

	s.LockPoolSize = 0
	small, err := OpenLockPool(s)
	if err != nil {
		t.Fatalf("OpenLockPool: %v", err)
	}
	defer small.Close()
	if got := small.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", got)
	}
}
