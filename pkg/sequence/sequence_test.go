package sequence

import (
	"errors"
	"sync"
	"testing"

	"github.com/aldoetobex/clearinsure-backend/pkg/database/dbtest"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNextNumberIsPerPrefix(t *testing.T) {
	db := dbtest.New(t)

	got := []string{}
	for _, p := range []string{"CO", "CO", "TO", "CO", ClaimPrefix} {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			n, err := NextNumber(tx, p)
			got = append(got, n)
			return err
		}))
	}
	assert.Equal(t, []string{"CO-0001", "CO-0002", "TO-0001", "CO-0003", "CL-0001"}, got)
}

func TestRollbackReleasesNumber(t *testing.T) {
	db := dbtest.New(t)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := Next(tx, "PS")
		return err
	}))

	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := Next(tx, "PS"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int64
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = Next(tx, "PS")
		return err
	}))
	assert.Equal(t, int64(2), n)
}

func TestConcurrentFirstAllocationsAreUnique(t *testing.T) {
	db := dbtest.New(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite allows one writer; transactions queue on the single connection.
	sqlDB.SetMaxOpenConns(1)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		got  = map[string]bool{}
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var n string
			err := db.Transaction(func(tx *gorm.DB) error {
				var err error
				n, err = NextNumber(tx, "TF")
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			got[n] = true
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, got, workers)
	for i := int64(1); i <= workers; i++ {
		assert.True(t, got[Format("TF", i)], Format("TF", i))
	}
}

func TestExistingCounterIsContinued(t *testing.T) {
	db := dbtest.New(t)
	require.NoError(t, db.Create(&models.NumberSequence{Prefix: "QT", LastValue: 41}).Error)

	var n string
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = NextNumber(tx, QuotePrefix)
		return err
	}))
	assert.Equal(t, "QT-0042", n)
}

func TestFormatPadsToFourDigits(t *testing.T) {
	assert.Equal(t, "CO-0007", Format("CO", 7))
	assert.Equal(t, "CL-12345", Format("CL", 12345))
}
