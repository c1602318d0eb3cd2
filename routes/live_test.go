package routes

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

func TestLiveStreamDeliversStateAndNotifications(t *testing.T) {
	a := newApp(t)
	s := a.register("alice")

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?access_token=" + s.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() frame {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}

	first := read()
	assert.Equal(t, "state", first.Type)
	assert.EqualValues(t, 10, first.Data["points"])

	a.createTask(s.Token, "stream me", "2024-05-10T20:00:00Z")

	var gotNote, gotState bool
	for i := 0; i < 10 && !(gotNote && gotState); i++ {
		f := read()
		switch f.Type {
		case "notification":
			assert.Equal(t, "Points Update!", f.Data["title"])
			gotNote = true
		case "state":
			if f.Data["points"] == float64(20) {
				gotState = true
			}
		}
	}
	assert.True(t, gotNote, "points notification delivered")
	assert.True(t, gotState, "fresh state pushed after the change")
}

func TestLiveStreamRejectsAnonymous(t *testing.T) {
	a := newApp(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
