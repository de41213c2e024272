package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
)

type CacheTestSuite struct {
	suite.Suite
	client *Client
	mock   redismock.ClientMock
	cache  Cache
}

func (s *CacheTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	s.client = &Client{rdb: db, logger: logging.NewNopLogger()}
	s.cache = NewCache(s.client, logging.NewNopLogger(), WithPrefix("test:"))
}

func (s *CacheTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

type cachedReport struct {
	VIN   string `json:"vin"`
	Value int    `json:"value"`
}

func (s *CacheTestSuite) TestGet_Hit() {
	val := cachedReport{VIN: "1HGBH41JXMN109186", Value: 18250}
	raw, _ := json.Marshal(val)

	s.mock.ExpectGet("test:report:abc").SetVal(string(raw))

	var dest cachedReport
	err := s.cache.Get(context.Background(), "report:abc", &dest)

	assert.NoError(s.T(), err)
	assert.Equal(s.T(), val, dest)
}

func (s *CacheTestSuite) TestGet_Miss() {
	s.mock.ExpectGet("test:report:abc").RedisNil()

	var dest cachedReport
	err := s.cache.Get(context.Background(), "report:abc", &dest)

	assert.Equal(s.T(), ErrCacheMiss, err)
}

func (s *CacheTestSuite) TestGet_NullMarkerIsMiss() {
	s.mock.ExpectGet("test:report:abc").SetVal(nullValue)

	var dest cachedReport
	err := s.cache.Get(context.Background(), "report:abc", &dest)

	assert.Equal(s.T(), ErrCacheMiss, err)
}

func (s *CacheTestSuite) TestGet_MalformedPayload() {
	s.mock.ExpectGet("test:report:abc").SetVal("{not json")

	var dest cachedReport
	err := s.cache.Get(context.Background(), "report:abc", &dest)

	assert.Error(s.T(), err)
	assert.NotEqual(s.T(), ErrCacheMiss, err)
}

func (s *CacheTestSuite) TestDelete() {
	s.mock.ExpectDel("test:k1", "test:k2").SetVal(2)

	err := s.cache.Delete(context.Background(), "k1", "k2")
	assert.NoError(s.T(), err)
}

func (s *CacheTestSuite) TestDelete_NoKeys() {
	err := s.cache.Delete(context.Background())
	assert.NoError(s.T(), err)
}

func (s *CacheTestSuite) TestExists() {
	s.mock.ExpectExists("test:k1").SetVal(1)

	exists, err := s.cache.Exists(context.Background(), "k1")
	assert.NoError(s.T(), err)
	assert.True(s.T(), exists)
}

func (s *CacheTestSuite) TestGetOrSet_HitSkipsLoader() {
	val := cachedReport{VIN: "1HGBH41JXMN109186", Value: 18250}
	raw, _ := json.Marshal(val)

	s.mock.ExpectGet("test:report:abc").SetVal(string(raw))

	loaderCalled := false
	var dest cachedReport
	err := s.cache.GetOrSet(context.Background(), "report:abc", &dest, time.Minute, func(ctx context.Context) (any, error) {
		loaderCalled = true
		return &val, nil
	})

	assert.NoError(s.T(), err)
	assert.False(s.T(), loaderCalled)
	assert.Equal(s.T(), val, dest)
}

func (s *CacheTestSuite) TestIncr() {
	s.mock.ExpectIncr("test:counter").SetVal(4)

	n, err := s.cache.Incr(context.Background(), "counter")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(4), n)
}

func (s *CacheTestSuite) TestExpire() {
	s.mock.ExpectExpire("test:k1", time.Minute).SetVal(true)

	err := s.cache.Expire(context.Background(), "k1", time.Minute)
	assert.NoError(s.T(), err)
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func TestJitterTTL(t *testing.T) {
	base := 10 * time.Minute
	for i := 0; i < 200; i++ {
		got := jitterTTL(base)
		assert.GreaterOrEqual(t, got, base-base/10)
		assert.LessOrEqual(t, got, base+base/10)
	}

	assert.Equal(t, time.Duration(0), jitterTTL(0))
}
