package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategy_IsImmutable(t *testing.T) {
	rec := newRecorder()
	transports := []Transport{
		&fakeTransport{kind: KindBrowser, rec: rec},
		&fakeTransport{kind: KindTab, rec: rec},
	}
	s := NewStrategy(transports, false)

	transports[0] = &fakeTransport{kind: KindEmbedded, rec: rec}

	assert.Equal(t, []Kind{KindBrowser, KindTab}, s.Kinds())
}

func TestStrategy_Match(t *testing.T) {
	rec := newRecorder()
	s := NewStrategy([]Transport{
		&fakeTransport{kind: KindBrowser, rec: rec},
		&fakeTransport{kind: KindEmbedded, rec: rec},
	}, false)

	tests := []struct {
		name    string
		payload Payload
		want    Kind
	}{
		{name: "redirect uri", payload: redirectTo("/browser"), want: KindBrowser},
		{name: "request code", payload: Payload{RequestCode: RequestCodeAuthenticate}, want: KindEmbedded},
		{name: "transport outside strategy", payload: redirectTo("/tab")},
		{name: "empty payload", payload: Payload{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Match(tt.payload)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind())
		})
	}
}

func TestStrategy_AuthenticateStopsOnCanceledContext(t *testing.T) {
	rec := newRecorder()
	s := NewStrategy([]Transport{&fakeTransport{kind: KindBrowser, rec: rec}}, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Authenticate(ctx, nil, LaunchRequest{CycleID: "c"})
	assert.ErrorIs(t, err, ErrLaunchFailed)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, rec.Events())
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("webview")
	assert.Error(t, err)
}
