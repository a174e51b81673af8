package mjpeg

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestSlotOverwrites(t *testing.T) {
	p := NewPublisher(nil)

	_, ok := p.Latest("cam1")
	assert.False(t, ok)

	p.Publish("cam1", []byte("a"))
	p.Publish("cam1", []byte("b"))
	p.Publish("cam1", nil)

	got, ok := p.Latest("cam1")
	require.True(t, ok)
	assert.Equal(t, "b", string(got))

	p.Remove("cam1")
	_, ok = p.Latest("cam1")
	assert.False(t, ok)
}

func TestPlaceholderRenderedOnce(t *testing.T) {
	calls := 0
	p := NewPublisher(func(text string) ([]byte, error) {
		calls++
		assert.Equal(t, NoSignalText, text)
		return []byte("ph"), nil
	})

	assert.Equal(t, "ph", string(p.Placeholder()))
	assert.Equal(t, "ph", string(p.Placeholder()))
	assert.Equal(t, 1, calls)

	broken := NewPublisher(func(string) ([]byte, error) { return nil, errors.New("no opencv") })
	assert.Nil(t, broken.Placeholder())
}

func TestConcurrentPublishAndRead(t *testing.T) {
	p := NewPublisher(nil)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				p.Publish("cam", []byte{0xFF, 0xD8, byte(j)})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				p.Latest("cam")
			}
		}()
	}
	wg.Wait()
	_, ok := p.Latest("cam")
	assert.True(t, ok)
}

func TestStreamWritesPlaceholderThenFrames(t *testing.T) {
	p := NewPublisher(func(string) ([]byte, error) { return []byte("PLACEHOLDER"), nil })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.StreamMJPEGHTTP(w, r, "cam1")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readPart := func() string {
		var body string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if line == "\r\n" {
				break
			}
		}
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		body = strings.TrimSuffix(line, "\r\n")
		return body
	}

	assert.Equal(t, "PLACEHOLDER", readPart())

	require.Eventually(t, func() bool { return p.Streamers("cam1") == 1 }, time.Second, time.Millisecond)
	p.Publish("cam1", []byte("FRAME-1"))
	assert.Equal(t, "FRAME-1", readPart())

	cancel()
	require.Eventually(t, func() bool { return p.Streamers("cam1") == 0 }, 2*time.Second, 5*time.Millisecond)
}
