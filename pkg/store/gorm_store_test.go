package store

import (
	"errors"
	"testing"

	"gorm.io/gorm"
)

func TestVersionAllocationRetriesAfterDuplicate(t *testing.T) {
	calls := 0
	err := allocateWithRetry(func() error {
		calls++
		if calls == 1 {
			return gorm.ErrDuplicatedKey
		}
		return nil
	})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if calls != 2 {
		t.Fatalf("allocation attempts = %d, want 2", calls)
	}
}

func TestVersionAllocationGivesUpAfterRetries(t *testing.T) {
	calls := 0
	err := allocateWithRetry(func() error {
		calls++
		return gorm.ErrDuplicatedKey
	})
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("exhaustion error = %v, want wrapped duplicate key", err)
	}
	if calls != versionAllocRetries {
		t.Fatalf("allocation attempts = %d, want %d", calls, versionAllocRetries)
	}
}

func TestVersionAllocationStopsOnOtherErrors(t *testing.T) {
	failure := errors.New("connection lost")
	calls := 0
	err := allocateWithRetry(func() error {
		calls++
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("error = %v, want the transaction failure", err)
	}
	if calls != 1 {
		t.Fatalf("allocation attempts = %d, want 1", calls)
	}
}
