package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultMeshLocalPrefix prefixes an RLOC16 to form a mesh-local address.
const DefaultMeshLocalPrefix = "fdde:ad00:beef:0:0:ff:fe00:"

const (
	otbrDatasetPath  = "/v1/node/dataset/active"
	otbrNeighborPath = "/v1/node/neighbor-table"
)

// OTBRSource queries an OpenThread Border Router REST API.
type OTBRSource struct {
	client *resty.Client
	prefix string
}

// NewOTBRSource creates a REST topology source for baseURL.
func NewOTBRSource(baseURL, meshLocalPrefix string, timeout time.Duration) *OTBRSource {
	if meshLocalPrefix == "" {
		meshLocalPrefix = DefaultMeshLocalPrefix
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &OTBRSource{client: client, prefix: meshLocalPrefix}
}

// neighborEntry is one row of the OTBR neighbor table.
type neighborEntry struct {
	IPv6Address string          `json:"IPv6Address"`
	Rloc16      json.RawMessage `json:"Rloc16"`
}

// Addresses checks that the active dataset exists, then reads the neighbor
// table. Entries without an IPv6 address fall back to prefix+RLOC16.
func (s *OTBRSource) Addresses(ctx context.Context) ([]string, error) {
	resp, err := s.client.R().SetContext(ctx).Get(otbrDatasetPath)
	if err != nil {
		return nil, &TopologyError{Source: "otbr", Err: fmt.Errorf("dataset query: %w", err)}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &TopologyError{Source: "otbr", Err: fmt.Errorf("%w: dataset query returned %d", ErrNotAttached, resp.StatusCode())}
	}

	var neighbors []neighborEntry
	resp, err = s.client.R().SetContext(ctx).SetResult(&neighbors).Get(otbrNeighborPath)
	if err != nil {
		return nil, &TopologyError{Source: "otbr", Err: fmt.Errorf("neighbor query: %w", err)}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &TopologyError{Source: "otbr", Err: fmt.Errorf("neighbor query returned %d", resp.StatusCode())}
	}

	addrs := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		switch {
		case n.IPv6Address != "":
			addrs = append(addrs, n.IPv6Address)
		case len(n.Rloc16) > 0:
			rloc, ok := parseRloc16(n.Rloc16)
			if !ok {
				continue
			}
			addrs = append(addrs, fmt.Sprintf("%s%04x", s.prefix, rloc))
		}
	}
	return addrs, nil
}

// parseRloc16 accepts a JSON number or a "0x"-prefixed hex string.
func parseRloc16(raw json.RawMessage) (uint16, bool) {
	var n uint16
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}
