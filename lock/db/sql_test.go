//
// Copyright 2023 Bytedance Ltd. and/or its affiliates
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/testsuit"
)

func initDB(t *testing.T) *gorm.DB {
	db := testsuit.InitSQLite(t)
	require.NoError(t, Migrate(db))
	return db
}

func TestLockExpired(t *testing.T) {
	lock := NewDBLock(initDB(t), time.Second, WithoutRetry())
	l, err := lock.Lock(context.Background(), "abc")
	require.NoError(t, err)
	first := l.(*LockRecord)
	assert.NotEmpty(t, first.Owner)

	_, err = lock.Lock(context.Background(), "abc")
	assert.ErrorIs(t, err, ordercore.ErrLocked)

	// 过期后可被抢占，原持有者无法再解锁
	time.Sleep(1100 * time.Millisecond)
	l, err = lock.Lock(context.Background(), "abc")
	require.NoError(t, err)
	assert.NotEqual(t, first.Owner, l.(*LockRecord).Owner)
	assert.Error(t, lock.UnLock(context.Background(), first))
	assert.NoError(t, lock.UnLock(context.Background(), l))
}

func TestUnLock(t *testing.T) {
	lock := NewDBLock(initDB(t), time.Second)
	l, err := lock.Lock(context.Background(), "abc")
	require.NoError(t, err)
	require.NoError(t, lock.UnLock(context.Background(), l))
	_, err = lock.Lock(context.Background(), "abc")
	assert.NoError(t, err)
	assert.Error(t, lock.UnLock(context.Background(), "bad"))
}

func TestLockRetry(t *testing.T) {
	lock := NewDBLock(initDB(t), 5*time.Second, WithRetry(20, 50*time.Millisecond))
	l, err := lock.Lock(context.Background(), "k")
	require.NoError(t, err)
	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = lock.UnLock(context.Background(), l)
	}()
	_, err = lock.Lock(context.Background(), "k")
	assert.NoError(t, err)
}

func TestRun(t *testing.T) {
	lock := NewDBLock(initDB(t), 2*time.Second, WithoutRetry(), WithRenewInterval(500*time.Millisecond))
	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	go func() {
		defer wg.Done()
		err := lock.Run(context.Background(), "job", func(ctx context.Context) error {
			close(started)
			// 超过 ttl 仍持有，依赖续期
			time.Sleep(2500 * time.Millisecond)
			return ctx.Err()
		})
		assert.NoError(t, err)
	}()
	<-started
	time.Sleep(2200 * time.Millisecond)
	_, err := lock.Lock(context.Background(), "job")
	assert.ErrorIs(t, err, ordercore.ErrLocked)
	wg.Wait()

	boom := errors.New("boom")
	err = lock.Run(context.Background(), "job", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}
