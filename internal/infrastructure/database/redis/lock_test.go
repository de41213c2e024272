package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
)

type LockTestSuite struct {
	suite.Suite
	mock    redismock.ClientMock
	factory *LockFactory
}

func (s *LockTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	client := &Client{rdb: db, logger: logging.NewNopLogger()}
	s.factory = NewLockFactory(client, logging.NewNopLogger())
}

func (s *LockTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *LockTestSuite) newMutex(opts ...LockOption) *redisMutex {
	lock := s.factory.NewMutex("valuation:v-1", opts...)
	m, ok := lock.(*redisMutex)
	require.True(s.T(), ok)
	return m
}

func (s *LockTestSuite) TestTryLock_Acquired() {
	m := s.newMutex(WithLockTTL(5 * time.Second))
	s.mock.ExpectSetNX(m.key, m.value, 5*time.Second).SetVal(true)

	ok, err := m.TryLock(context.Background())

	assert.NoError(s.T(), err)
	assert.True(s.T(), ok)
}

func (s *LockTestSuite) TestTryLock_AlreadyHeld() {
	m := s.newMutex(WithLockTTL(5 * time.Second))
	s.mock.ExpectSetNX(m.key, m.value, 5*time.Second).SetVal(false)

	ok, err := m.TryLock(context.Background())

	assert.NoError(s.T(), err)
	assert.False(s.T(), ok)
}

func (s *LockTestSuite) TestLock_RetriesUntilAcquired() {
	m := s.newMutex(WithLockTTL(time.Second), WithRetry(time.Millisecond, 5))
	s.mock.ExpectSetNX(m.key, m.value, time.Second).SetVal(false)
	s.mock.ExpectSetNX(m.key, m.value, time.Second).SetVal(true)

	err := m.Lock(context.Background())

	assert.NoError(s.T(), err)
}

func (s *LockTestSuite) TestLock_RetriesExhausted() {
	m := s.newMutex(WithLockTTL(time.Second), WithRetry(time.Millisecond, 2))
	s.mock.ExpectSetNX(m.key, m.value, time.Second).SetVal(false)
	s.mock.ExpectSetNX(m.key, m.value, time.Second).SetVal(false)

	err := m.Lock(context.Background())

	assert.Equal(s.T(), ErrLockNotAcquired, err)
}

func (s *LockTestSuite) TestUnlock_Owned() {
	m := s.newMutex()
	s.mock.ExpectEvalSha(unlockScript.Hash(), []string{m.key}, m.value).SetVal(int64(1))

	assert.NoError(s.T(), m.Unlock(context.Background()))
}

func (s *LockTestSuite) TestUnlock_NotHeld() {
	m := s.newMutex()
	s.mock.ExpectEvalSha(unlockScript.Hash(), []string{m.key}, m.value).SetVal(int64(0))

	assert.Equal(s.T(), ErrLockNotHeld, m.Unlock(context.Background()))
}

func (s *LockTestSuite) TestExtend() {
	m := s.newMutex()
	s.mock.ExpectEvalSha(extendScript.Hash(), []string{m.key}, m.value, int64(5000)).SetVal(int64(1))

	ok, err := m.Extend(context.Background(), 5*time.Second)

	assert.NoError(s.T(), err)
	assert.True(s.T(), ok)
}

func TestLockSuite(t *testing.T) {
	suite.Run(t, new(LockTestSuite))
}
