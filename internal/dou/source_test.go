package dou

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
	"github.com/JakeFAU/gazette-watch/internal/storage/memory"
)

func TestSourceFetchParsesAndArchives(t *testing.T) {
	t.Parallel()

	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	archive := memory.NewBlobStore()
	src := NewSource(Config{
		BaseURL:       srv.URL + "/leiturajornal",
		WebURL:        "https://www.in.gov.br",
		UserAgent:     "gazette-watch-test",
		Timeout:       5 * time.Second,
		MaxAttempts:   1,
		ArchivePrefix: "pages",
	}, archive, zap.NewNop())

	day := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	entries, err := src.Fetch(context.Background(), gazette.SectionOne, day)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "data=14-03-2024&secao=do1", gotQuery.Load())

	stored, ok := archive.Object("pages/2024-03-14/do1.html")
	require.True(t, ok)
	require.Equal(t, samplePage, string(stored))
}

func TestSourceFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	src := NewSource(Config{
		BaseURL:     srv.URL,
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	}, nil, zap.NewNop())

	entries, err := src.Fetch(context.Background(), gazette.SectionThree, time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, int32(3), calls.Load())
}

func TestSourceFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewSource(Config{
		BaseURL:     srv.URL,
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	}, nil, zap.NewNop())

	_, err := src.Fetch(context.Background(), gazette.SectionTwo, time.Now())
	require.ErrorContains(t, err, "status 404")
	require.Equal(t, int32(1), calls.Load())
}

func TestSourceFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	src := NewSource(Config{BaseURL: srv.URL, MaxAttempts: 3}, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Fetch(ctx, gazette.SectionOne, time.Now())
	require.ErrorIs(t, err, context.Canceled)
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	src := NewSource(Config{}, nil, nil)
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "https://www.in.gov.br/leiturajornal?data=02-01-2024&secao=do3", src.PageURL(gazette.SectionThree, day))
}

func TestStatusErrorTemporary(t *testing.T) {
	t.Parallel()

	require.True(t, (&StatusError{StatusCode: http.StatusBadGateway}).Temporary())
	require.True(t, (&StatusError{StatusCode: http.StatusTooManyRequests}).Temporary())
	require.False(t, (&StatusError{StatusCode: http.StatusForbidden}).Temporary())
	require.False(t, isRetryable(context.Canceled))
}

type countingLimiter struct {
	calls atomic.Int32
	err   error
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls.Add(1)
	return l.err
}

func TestSourceFetchWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	limiter := &countingLimiter{}
	src := NewSource(Config{BaseURL: srv.URL, Limiter: limiter}, nil, zap.NewNop())
	_, err := src.Fetch(context.Background(), gazette.SectionOne, time.Now())
	require.NoError(t, err)
	require.Equal(t, int32(1), limiter.calls.Load())

	limiter.err = context.DeadlineExceeded
	_, err = src.Fetch(context.Background(), gazette.SectionOne, time.Now())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSourceFetchCancelAbortsInFlightRequest(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	aborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
		close(aborted)
	}))
	defer srv.Close()

	src := NewSource(Config{BaseURL: srv.URL, Timeout: time.Minute, MaxAttempts: 1}, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := src.Fetch(ctx, gazette.SectionOne, time.Now())
	require.ErrorIs(t, err, context.Canceled)

	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("request kept running after the context was canceled")
	}
}
