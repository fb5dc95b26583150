package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOTBRServer(t *testing.T, datasetStatus int, neighbors any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(otbrDatasetPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(datasetStatus)
	})
	mux.HandleFunc(otbrNeighborPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(neighbors))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOTBRSource_Addresses(t *testing.T) {
	srv := newOTBRServer(t, http.StatusOK, []map[string]any{
		{"IPv6Address": "fd00::1", "Rloc16": 1024},
		{"Rloc16": 43009},
		{"Rloc16": "0xa802"},
		{"Rloc16": "bogus"},
		{},
	})

	src := NewOTBRSource(srv.URL+"/", "fd00::ff:fe00:", time.Second)
	addrs, err := src.Addresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fd00::1", "fd00::ff:fe00:a801", "fd00::ff:fe00:a802"}, addrs)
}

func TestOTBRSource_DefaultPrefix(t *testing.T) {
	srv := newOTBRServer(t, http.StatusOK, []map[string]any{{"Rloc16": 1}})

	addrs, err := NewOTBRSource(srv.URL, "", 0).Addresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultMeshLocalPrefix + "0001"}, addrs)
}

func TestOTBRSource_NoActiveDataset(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotFound} {
		srv := newOTBRServer(t, status, []map[string]any{{"IPv6Address": "fd00::1"}})

		addrs, err := NewOTBRSource(srv.URL, "", time.Second).Addresses(context.Background())
		require.Error(t, err)
		assert.Empty(t, addrs)
		assert.True(t, errors.Is(err, ErrNotAttached))

		var topoErr *TopologyError
		require.ErrorAs(t, err, &topoErr)
		assert.Equal(t, "otbr", topoErr.Source)
	}
}

func TestOTBRSource_EmptyTable(t *testing.T) {
	srv := newOTBRServer(t, http.StatusOK, []map[string]any{})

	addrs, err := NewOTBRSource(srv.URL, "", time.Second).Addresses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestOTBRSource_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOTBRSource(url, "", time.Second).Addresses(context.Background())
	var topoErr *TopologyError
	assert.ErrorAs(t, err, &topoErr)
}

func TestParseRloc16(t *testing.T) {
	tests := []struct {
		raw  string
		want uint16
		ok   bool
	}{
		{`43009`, 0xa801, true},
		{`"0xA801"`, 0xa801, true},
		{`"a801"`, 0xa801, true},
		{`70000`, 0, false},
		{`"0xzz"`, 0, false},
		{`null`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseRloc16(json.RawMessage(tt.raw))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
