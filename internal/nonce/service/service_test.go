package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	noncestore "verethfier/internal/nonce/store"
	"verethfier/internal/platform/metrics"
	dErrors "verethfier/pkg/domain-errors"
	"verethfier/pkg/requestcontext"
)

// NonceServiceSuite covers the single-use contract: issue, resolve, verify,
// consume, expiry, and that a second consume always fails.
type NonceServiceSuite struct {
	suite.Suite
	store   *noncestore.InMemoryNonceStore
	metrics *metrics.Metrics
	service *Service
	now     time.Time
}

func TestNonceServiceSuite(t *testing.T) {
	suite.Run(t, new(NonceServiceSuite))
}

func (s *NonceServiceSuite) SetupTest() {
	s.store = noncestore.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	svc, err := New(s.store, WithTTL(5*time.Minute), WithMetrics(s.metrics))
	s.Require().NoError(err)
	s.service = svc
	s.now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
}

func (s *NonceServiceSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *NonceServiceSuite) TestIssue() {
	n, err := s.service.Issue(s.at(0), "user-1", "msg-1", "chan-1")
	s.Require().NoError(err)

	s.Len(n.Value, 64)
	s.Equal(s.now.Add(5*time.Minute), n.ExpiresAt)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.NoncesIssued))

	s.Run("replaces previous nonce", func() {
		second, err := s.service.Issue(s.at(time.Second), "user-1", "msg-2", "")
		s.Require().NoError(err)
		s.NotEqual(n.Value, second.Value)

		_, err = s.service.Verify(s.at(2*time.Second), "user-1", n.Value)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidNonce))
	})

	s.Run("requires owner", func() {
		_, err := s.service.Issue(s.at(0), " ", "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *NonceServiceSuite) TestResolve() {
	_, err := s.service.Issue(s.at(0), "user-1", "msg-1", "chan-1")
	s.Require().NoError(err)

	got, err := s.service.Resolve(s.at(time.Minute), "user-1")
	s.Require().NoError(err)
	s.Equal("msg-1", got.MessageID)
	s.Equal("chan-1", got.ChannelID)

	// Resolve does not consume.
	_, err = s.service.Resolve(s.at(time.Minute), "user-1")
	s.NoError(err)
}

func (s *NonceServiceSuite) TestVerify() {
	n, err := s.service.Issue(s.at(0), "user-1", "", "")
	s.Require().NoError(err)

	got, err := s.service.Verify(s.at(time.Second), "user-1", n.Value)
	s.Require().NoError(err)
	s.Equal(n.Value, got.Value)

	_, err = s.service.Verify(s.at(time.Second), "user-1", strings.Repeat("0", 64))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidNonce))

	_, err = s.service.Verify(s.at(time.Second), "user-2", n.Value)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidNonce))
}

func (s *NonceServiceSuite) TestExpiry() {
	_, err := s.service.Issue(s.at(0), "user-1", "", "")
	s.Require().NoError(err)

	_, err = s.service.Resolve(s.at(5*time.Minute), "user-1")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidNonce))
	s.Equal(ErrNoActiveNonce, err.Error())
}

func (s *NonceServiceSuite) TestConsumeIsSingleUse() {
	// Issue, consume, resolve again: the second resolve finds nothing.
	issued, err := s.service.Issue(s.at(0), "user-1", "msg-1", "")
	s.Require().NoError(err)

	s.Require().NoError(s.service.Consume(s.at(time.Second), "user-1", issued.Value))

	_, err = s.service.Resolve(s.at(2*time.Second), "user-1")
	s.Equal(ErrNoActiveNonce, err.Error())

	err = s.service.Consume(s.at(3*time.Second), "user-1", issued.Value)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidNonce))
}

func (s *NonceServiceSuite) TestReissueBetweenVerifyAndConsume() {
	stale, err := s.service.Issue(s.at(0), "user-1", "", "")
	s.Require().NoError(err)
	_, err = s.service.Verify(s.at(time.Second), "user-1", stale.Value)
	s.Require().NoError(err)

	fresh, err := s.service.Issue(s.at(2*time.Second), "user-1", "", "")
	s.Require().NoError(err)

	err = s.service.Consume(s.at(3*time.Second), "user-1", stale.Value)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidNonce), "stale nonce must not be accepted")

	got, err := s.service.Verify(s.at(4*time.Second), "user-1", fresh.Value)
	s.Require().NoError(err, "fresh nonce must survive")
	s.Equal(fresh.Value, got.Value)
}

func (s *NonceServiceSuite) TestConcurrentConsumeHasOneWinner() {
	issued, err := s.service.Issue(s.at(0), "user-1", "", "")
	s.Require().NoError(err)

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.service.Consume(s.at(time.Second), "user-1", issued.Value) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, wins)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func (s *NonceServiceSuite) TestRandomFailureIsInternal() {
	svc, err := New(s.store, WithRandomSource(failingReader{}))
	s.Require().NoError(err)

	_, err = svc.Issue(s.at(0), "user-1", "", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *NonceServiceSuite) TestNewRequiresStore() {
	_, err := New(nil)
	s.Error(err)
}
