package birthday

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOfficial struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, call int) (*domain.OfficialSet, error)
}

func (s *stubOfficial) FetchOfficial(ctx context.Context) (*domain.OfficialSet, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.fn(ctx, call)
}

type stubCustom struct {
	fn func(ctx context.Context) ([]domain.CustomRecord, error)
}

func (s *stubCustom) FetchCustom(ctx context.Context) ([]domain.CustomRecord, error) {
	return s.fn(ctx)
}

type recordingPublisher struct {
	published atomic.Int32
}

func (p *recordingPublisher) PublishIndex(ctx context.Context, idx *domain.BirthdayIndex) error {
	p.published.Add(1)
	return nil
}

func okOfficial(ctx context.Context, call int) (*domain.OfficialSet, error) {
	return officialFixture(), nil
}

func okCustom(ctx context.Context) ([]domain.CustomRecord, error) {
	return []domain.CustomRecord{{FirstName: strPtr("New"), Birthday: strPtr("3/5"), Image: strPtr("n.png")}}, nil
}

func newTestPipeline(t *testing.T, official OfficialSource, custom CustomSource, publisher IndexPublisher, retry time.Duration) *Pipeline {
	t.Helper()
	p, err := NewPipeline(official, custom, publisher, PipelineConfig{RetryDelay: retry}, nil, nil)
	require.NoError(t, err)
	return p
}

func TestPipelineRefreshPublishesIndex(t *testing.T) {
	publisher := &recordingPublisher{}
	p := newTestPipeline(t, &stubOfficial{fn: okOfficial}, &stubCustom{fn: okCustom}, publisher, time.Second)

	assert.Nil(t, p.Current())
	require.NoError(t, p.Refresh(context.Background()))

	idx := p.Current()
	require.NotNil(t, idx)
	entries := idx.Lookup(3, 5)
	require.Len(t, entries, 2)
	assert.Equal(t, "X", entries[0].Name)
	assert.Equal(t, "New", entries[1].Name)

	status := p.Status()
	assert.True(t, status.Healthy)
	assert.Equal(t, 3, status.Records)
	assert.NotEmpty(t, status.RunID)
	assert.Equal(t, int32(1), publisher.published.Load())
}

func TestPipelineFailFastCancelsSibling(t *testing.T) {
	fetchErr := errors.New("official down")
	cancelled := make(chan struct{})

	official := &stubOfficial{fn: func(ctx context.Context, call int) (*domain.OfficialSet, error) {
		return nil, fetchErr
	}}
	custom := &stubCustom{fn: func(ctx context.Context) ([]domain.CustomRecord, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}}

	p := newTestPipeline(t, official, custom, nil, time.Second)
	err := p.Refresh(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, fetchErr)
	assert.Nil(t, p.Current())
	assert.False(t, p.Status().Healthy)
	assert.Contains(t, p.Status().LastError, "official down")

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("custom fetch was not cancelled")
	}
}

func TestPipelineFailureKeepsPreviousIndex(t *testing.T) {
	official := &stubOfficial{fn: func(ctx context.Context, call int) (*domain.OfficialSet, error) {
		if call == 2 {
			return nil, errors.New("flaky")
		}
		return officialFixture(), nil
	}}
	p := newTestPipeline(t, official, &stubCustom{fn: okCustom}, nil, time.Second)
	ctx := context.Background()

	require.NoError(t, p.Refresh(ctx))
	first := p.Current()

	require.Error(t, p.Refresh(ctx))
	assert.Same(t, first, p.Current())

	require.NoError(t, p.Refresh(ctx))
	assert.NotSame(t, first, p.Current())
	assert.True(t, p.Status().Healthy)
}

func TestPipelineRunRetriesAfterFixedDelay(t *testing.T) {
	official := &stubOfficial{fn: func(ctx context.Context, call int) (*domain.OfficialSet, error) {
		if call == 1 {
			return nil, errors.New("first attempt fails")
		}
		return officialFixture(), nil
	}}
	p := newTestPipeline(t, official, &stubCustom{fn: okCustom}, nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.Current() != nil }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	official.mu.Lock()
	assert.Equal(t, 2, official.calls)
	official.mu.Unlock()
}

func TestNewPipelineRejectsBadCron(t *testing.T) {
	_, err := NewPipeline(&stubOfficial{fn: okOfficial}, &stubCustom{fn: okCustom}, nil, PipelineConfig{RefreshCron: "not a cron"}, nil, nil)
	assert.Error(t, err)
}
