package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kapu/hololive-widget-go/internal/service/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range routes {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSources(t *testing.T) {
	srv := serve(t, map[string]string{
		"/official.json": `{"suisei": {"firstName": "Hoshimachi", "lastName": "Suisei", "birthday": "3/22", "image": "s.png"},
			"miko": {"firstName": "Sakura", "lastName": "Miko", "birthday": "3/5", "image": "m.png"}}`,
		"/custom.json": `[{"Id": "miko", "image": "m2.png"}, {}, {"firstName": "Guest", "birthday": "1/1"}]`,
		"/events.json": `[
			{"eventId": 1, "name": "Live", "start": "2025-03-05T10:00:00Z", "end": "2025-03-05T12:00:00Z"},
			{"eventId": "", "name": "No id", "start": "2025-03-05T10:00:00Z", "end": "2025-03-05T12:00:00Z"},
			{"eventId": 2, "name": "Backwards", "start": "2025-03-05T10:00:00Z", "end": "2025-03-05T09:00:00Z"},
			{"eventId": 3, "name": "No end", "start": "2025-03-05T10:00:00Z"}
		]`,
	})
	fetcher := fetch.NewFetcher(srv.Client(), nil, 0, nil)
	ctx := context.Background()

	official, err := NewOfficialHTTPSource(fetcher, srv.URL+"/official.json", nil).FetchOfficial(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"suisei", "miko"}, official.IDs())

	customs, err := NewCustomHTTPSource(fetcher, srv.URL+"/custom.json", nil).FetchCustom(ctx)
	require.NoError(t, err)
	require.Len(t, customs, 2)
	assert.Equal(t, "miko", customs[0].ID)
	assert.Equal(t, "Guest", *customs[1].FirstName)

	events, err := NewEventHTTPSource(fetcher, srv.URL+"/events.json", nil).FetchEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Live", events[0].Name)
}

func TestOfficialHTTPSourceRejectsList(t *testing.T) {
	srv := serve(t, map[string]string{"/official.json": `[]`})
	fetcher := fetch.NewFetcher(srv.Client(), nil, 0, nil)

	_, err := NewOfficialHTTPSource(fetcher, srv.URL+"/official.json", nil).FetchOfficial(context.Background())
	assert.Error(t, err)
}
