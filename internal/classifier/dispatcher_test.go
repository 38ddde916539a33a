package classifier

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/swarahealth/coughwatch-go/internal/blobstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newDispatcherFixture(t *testing.T, queueSize, workers int) (*Dispatcher, *blobstore.Store) {
	t.Helper()

	blobs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)

	client := newMockedClient(t)
	d := NewDispatcher(client, blobs, queueSize, workers, time.Second)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})
	return d, blobs
}

func TestDispatcherProcessesJob(t *testing.T) {
	d, blobs := newDispatcherFixture(t, 8, 1)

	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewStringResponder(http.StatusOK, "queued"))

	path, err := blobs.Save(strings.NewReader("audio"), "cough.wav")
	require.NoError(t, err)

	require.True(t, d.Enqueue(Job{RecordID: "ev-1", SubmitterName: "cg-001", AudioPath: path}))

	assert.Eventually(t, func() bool {
		return d.Stats().Completed == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestDispatcherSwallowsSubmissionFailure(t *testing.T) {
	d, blobs := newDispatcherFixture(t, 8, 1)

	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	path, err := blobs.Save(strings.NewReader("audio"), "cough.wav")
	require.NoError(t, err)

	require.True(t, d.Enqueue(Job{RecordID: "ev-2", AudioPath: path}))

	// The failure is recorded in stats and goes no further.
	assert.Eventually(t, func() bool {
		return d.Stats().Failed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherCountsMissingBlobAsFailure(t *testing.T) {
	d, _ := newDispatcherFixture(t, 8, 1)

	require.True(t, d.Enqueue(Job{RecordID: "ev-3", AudioPath: "/uploads/gone.wav"}))

	assert.Eventually(t, func() bool {
		return d.Stats().Failed == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	blobs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)

	client, err := NewClient(Config{Endpoint: testEndpoint})
	require.NoError(t, err)

	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	// The responder blocks so the single worker cannot drain the queue.
	release := make(chan struct{})
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		func(req *http.Request) (*http.Response, error) {
			<-release
			return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
		})

	d := NewDispatcher(client, blobs, 1, 1, 5*time.Second)
	t.Cleanup(func() {
		close(release)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})

	path, err := blobs.Save(strings.NewReader("audio"), "cough.wav")
	require.NoError(t, err)

	// With a blocked worker and a single queue slot at most two enqueues
	// can be accepted (one in flight, one queued); the rest must be
	// dropped immediately rather than blocking the caller.
	start := time.Now()
	accepted := 0
	for i := 0; i < 10; i++ {
		if d.Enqueue(Job{RecordID: "ev", AudioPath: path}) {
			accepted++
		}
	}

	assert.LessOrEqual(t, accepted, 2)
	assert.GreaterOrEqual(t, d.Stats().Dropped, uint64(8))
	assert.Less(t, time.Since(start), time.Second, "Enqueue must not block")
}
