package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/stock_ledger/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const jobLockTTL = 10 * time.Minute

// ErrJobRunning is returned when another instance holds the job's lock.
var ErrJobRunning = errors.New("job already running")

// jobLock serializes one maintenance job across instances.
// The redis lock is best-effort. The MySQL advisory lock is connection-scoped,
// so it must be taken on the transaction that does the work.
type jobLock struct {
	name     string
	redis    *redislock.Lock
	tx       *gorm.DB
	advisory bool
}

func acquireJobLock(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, name string) (*jobLock, error) {
	l := &jobLock{name: name, tx: tx}

	if locker := config.GetRedisLock(); locker == nil {
		logger.WithField("job", name).Warn("redis lock not ready; proceeding without redis lock")
	} else {
		lock, err := locker.Obtain(ctx, "lock:"+name, jobLockTTL, nil)
		if err == redislock.ErrNotObtained {
			return nil, fmt.Errorf("%s: %w", name, ErrJobRunning)
		} else if err != nil {
			logger.WithField("job", name).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		} else {
			l.redis = lock
		}
	}

	if tx.Dialector.Name() == "mysql" {
		var ok int
		if err := tx.Raw("SELECT GET_LOCK(?, 30)", "job:"+name).Scan(&ok).Error; err != nil {
			l.release(ctx)
			return nil, err
		}
		if ok != 1 {
			l.release(ctx)
			return nil, fmt.Errorf("%s: %w", name, ErrJobRunning)
		}
		l.advisory = true
	}
	return l, nil
}

func (l *jobLock) release(ctx context.Context) {
	if l.advisory {
		var _ok int
		_ = l.tx.Raw("SELECT RELEASE_LOCK(?)", "job:"+l.name).Scan(&_ok).Error
	}
	if l.redis != nil {
		_ = l.redis.Release(ctx)
	}
}
