package flowfile

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/url"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/graph"
)

// StateParam is the query parameter carrying a shared graph
const StateParam = "state"

// CompressState packs a graph as DEFLATE over compact JSON, base64url
// encoded without padding
func CompressState(g graph.Graph) (string, error) {
	var raw bytes.Buffer
	vp := g.Viewport
	if err := json.NewEncoder(&raw).Encode(document{Nodes: g.Nodes, Edges: g.Edges, Viewport: &vp}); err != nil {
		return "", failure("share", err)
	}

	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", failure("share", err)
	}
	if _, err := fw.Write(raw.Bytes()); err != nil {
		return "", failure("share", err)
	}
	if err := fw.Close(); err != nil {
		return "", failure("share", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecompressState reverses CompressState and goes through Import
func DecompressState(state string) (graph.Graph, error) {
	packed, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return graph.Graph{}, failure("share", errors.Wrap(err, "decode state"))
	}
	fr := flate.NewReader(bytes.NewReader(packed))
	defer fr.Close()

	raw, err := io.ReadAll(io.LimitReader(fr, MaxFileSize+1))
	if err != nil {
		return graph.Graph{}, failure("share", errors.Wrap(err, "inflate state"))
	}
	if len(raw) > MaxFileSize {
		return graph.Graph{}, failure("share", errors.Errorf("state exceeds %d bytes", MaxFileSize))
	}
	return Import(raw)
}

// ShareURL sets the state parameter of base to the packed graph, keeping any
// other query parameters
func ShareURL(base string, g graph.Graph) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", failure("share", err)
	}
	state, err := CompressState(g)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(StateParam, state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FromShareURL extracts and unpacks the state parameter of a share link
func FromShareURL(link string) (graph.Graph, error) {
	u, err := url.Parse(link)
	if err != nil {
		return graph.Graph{}, failure("share", err)
	}
	state := u.Query().Get(StateParam)
	if state == "" {
		return graph.Graph{}, failure("share", errors.Errorf("missing %q parameter", StateParam))
	}
	return DecompressState(state)
}
