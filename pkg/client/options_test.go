package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithRetryMax(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input int
		want  int
	}{
		{"positive", 5, 5},
		{"zero disables retries", 0, 0},
		{"negative ignored", -1, 3},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &Client{retryMax: 3}
			WithRetryMax(tt.input)(c)
			assert.Equal(t, tt.want, c.retryMax)
		})
	}
}

func TestWithRetryWait(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		min, max time.Duration
		wantMin  time.Duration
		wantMax  time.Duration
	}{
		{"both valid", time.Second, 10 * time.Second, time.Second, 10 * time.Second},
		{"max below min keeps max", 2 * time.Second, time.Second, 2 * time.Second, 5 * time.Second},
		{"zero min ignored", 0, time.Second, 500 * time.Millisecond, 5 * time.Second},
		{"negative min ignored", -time.Second, time.Second, 500 * time.Millisecond, 5 * time.Second},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &Client{retryWaitMin: 500 * time.Millisecond, retryWaitMax: 5 * time.Second}
			WithRetryWait(tt.min, tt.max)(c)
			assert.Equal(t, tt.wantMin, c.retryWaitMin)
			assert.Equal(t, tt.wantMax, c.retryWaitMax)
		})
	}
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	t.Parallel()

	c, err := NewClient("http://api.example.com", "key", WithHTTPClient(nil), WithLogger(nil), WithUserAgent(""))
	assert.NoError(t, err)
	assert.NotNil(t, c.httpClient)
	assert.Equal(t, noopLogger{}, c.logger)
	assert.Contains(t, c.userAgent, "keyconcept-go-sdk/")
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
}

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	c := &Client{retryWaitMin: 100 * time.Millisecond, retryWaitMax: 300 * time.Millisecond}
	for attempt, base := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 300 * time.Millisecond, 6: 300 * time.Millisecond} {
		got := c.calculateBackoff(attempt)
		assert.GreaterOrEqual(t, got, base)
		assert.Less(t, got, base+base/4+time.Nanosecond)
	}
}
