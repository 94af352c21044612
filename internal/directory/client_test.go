package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carl4WebDev/vet-user/internal/models"
)

func TestListMapsClinicsToPeers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/clinics", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"clinic_id":"c1","clinic_name":"Happy Paws","image_url":"http://img/1"},
			{"clinic_id":"c2","clinic_name":"City Vet","image_url":""}
		]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	peers := client.List(context.Background())

	require.Len(t, peers, 2)
	assert.Equal(t, "c1", peers[0].ID)
	assert.Equal(t, "Happy Paws", peers[0].DisplayName)
	assert.Equal(t, models.DefaultPreview, peers[0].LastMessagePreview)
}

func TestListSkipsRecordsWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"clinic_name":"No ID"},{"clinic_id":"c1","clinic_name":"Ok"}]`))
	}))
	defer server.Close()

	peers := NewClient(server.URL, time.Second).List(context.Background())
	require.Len(t, peers, 1)
	assert.Equal(t, "c1", peers[0].ID)
}

func TestListNon2xxFallsBackToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	peers := NewClient(server.URL, time.Second).List(context.Background())
	assert.NotNil(t, peers)
	assert.Empty(t, peers)
}

func TestListUnexpectedShapeFallsBackToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"clinics":"nope"}`))
	}))
	defer server.Close()

	peers := NewClient(server.URL, time.Second).List(context.Background())
	assert.Empty(t, peers)
}

func TestListUnreachableFallsBackToEmpty(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
	peers := client.List(context.Background())
	assert.Empty(t, peers)
}

func TestFilter(t *testing.T) {
	peers := []models.ConversationPeer{
		{ID: "c1", DisplayName: "Happy Paws"},
		{ID: "c2", DisplayName: "City Vet"},
		{ID: "c3", DisplayName: "paws & claws"},
	}

	assert.Len(t, Filter(peers, ""), 3)
	assert.Len(t, Filter(peers, "  "), 3)

	matched := Filter(peers, "PAWS")
	require.Len(t, matched, 2)
	assert.Equal(t, "c1", matched[0].ID)
	assert.Equal(t, "c3", matched[1].ID)

	assert.Empty(t, Filter(peers, "horse"))
}
