package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/piprate/json-gold/ld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polygonid/verifier-node/pkg/cache"
)

type spyLoader struct {
	mu     sync.Mutex
	called int // We will count the number of times the Load function is called
	err    error
}

func (s *spyLoader) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called++
	if s.err != nil {
		return nil, s.err
	}
	return []byte("this is a circuit asset"), nil
}

func TestCached_Load(t *testing.T) {
	ctx := context.Background()
	spy := &spyLoader{}
	c := cache.NewMemoryCache()
	myLoader := CachedFactory(func(url string) Loader { return spy }, c)("http://this/is/an/url")
	assert.Equal(t, spy.called, 0)
	for i := 0; i < 100; i++ {
		data, err := myLoader.Load(ctx)
		assert.NoError(t, err)
		assert.Equal(t, []byte("this is a circuit asset"), data)
		assert.Equal(t, 1, spy.called, "Load function of underlying loader has only been called once")
		assert.True(t, c.Exists(ctx, fmt.Sprintf("asset-%s", "http://this/is/an/url")))
	}
}

func TestOnce_Load(t *testing.T) {
	ctx := context.Background()
	spy := &spyLoader{}
	myLoader := OnceFactory(func(url string) Loader { return spy })("http://this/is/an/url")
	assert.Equal(t, spy.called, 0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := myLoader.Load(ctx)
			assert.NoError(t, err)
			assert.Equal(t, []byte("this is a circuit asset"), data)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, spy.called, "Load function of underlying loader has only been called once")
}

func TestOnce_LoadRetriesAfterError(t *testing.T) {
	ctx := context.Background()
	spy := &spyLoader{err: errors.New("boom")}
	myLoader := Once(spy)
	_, err := myLoader.Load(ctx)
	require.Error(t, err)

	spy.err = nil
	data, err := myLoader.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("this is a circuit asset"), data)
	assert.Equal(t, 2, spy.called)
}

func TestIpfsCID(t *testing.T) {
	type expected struct {
		cid  string
		path string
		err  error
	}
	type testConfig struct {
		url      string
		expected expected
	}

	for _, tc := range []testConfig{
		{
			url:      "",
			expected: expected{err: errInvalidIPFSURL},
		},
		{
			url: "ipfs://QmUrDHtC3fGYg1CqWzrgbxU5tXeQa4y323h277m6hXX84k",
			expected: expected{
				cid:  "QmUrDHtC3fGYg1CqWzrgbxU5tXeQa4y323h277m6hXX84k",
				path: "QmUrDHtC3fGYg1CqWzrgbxU5tXeQa4y323h277m6hXX84k",
			},
		},
		{
			url: "ipfs://QmUrDHtC3fGYg1CqWzrgbxU5tXeQa4y323h277m6hXX84k/authV2/circuit.wasm",
			expected: expected{
				cid:  "QmUrDHtC3fGYg1CqWzrgbxU5tXeQa4y323h277m6hXX84k",
				path: "QmUrDHtC3fGYg1CqWzrgbxU5tXeQa4y323h277m6hXX84k/authV2/circuit.wasm",
			},
		},
		{
			url:      "https://cloudflare-ipfs.com/ipfs/QmUrDHtC3fGYg1CqWzrgbxU5tXeQa4y323h277m6hXX84k",
			expected: expected{err: errInvalidIPFSURL},
		},
	} {
		t.Run(tc.url, func(t *testing.T) {
			got, err := ipfsCID(tc.url)
			assert.Equal(t, tc.expected.err, err)
			assert.Equal(t, tc.expected.cid, got)
			path, err := ipfsPath(tc.url)
			assert.Equal(t, tc.expected.err, err)
			assert.Equal(t, tc.expected.path, path)
		})
	}
}

func TestMultiProtocol(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ipfs/QmCID/authV2/circuit.wasm":
			_, _ = w.Write([]byte("from gateway"))
		case "/api/v0/cat":
			_, _ = w.Write([]byte("from node " + r.URL.Query().Get("arg")))
		case "/assets/circuit.wasm":
			_, _ = w.Write([]byte("from http"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	localFile := filepath.Join(dir, "circuit.wasm")
	require.NoError(t, os.WriteFile(localFile, []byte("from disk"), 0o600))

	type testConfig struct {
		name    string
		factory Factory
		url     string
		want    string
		err     bool
	}
	for _, tc := range []testConfig{
		{name: "local path", factory: MultiProtocolFactory("", srv.URL), url: localFile, want: "from disk"},
		{name: "file scheme", factory: MultiProtocolFactory("", srv.URL), url: "file://" + localFile, want: "from disk"},
		{name: "http", factory: MultiProtocolFactory("", srv.URL), url: srv.URL + "/assets/circuit.wasm", want: "from http"},
		{name: "ipfs gateway", factory: MultiProtocolFactory("", srv.URL), url: "ipfs://QmCID/authV2/circuit.wasm", want: "from gateway"},
		{name: "ipfs node", factory: MultiProtocolFactory(srv.URL, ""), url: "ipfs://QmCID/authV2/circuit.wasm", want: "from node QmCID/authV2/circuit.wasm"},
		{name: "unsupported", factory: MultiProtocolFactory("", srv.URL), url: "ftp://host/file", err: true},
		{name: "missing file", factory: MultiProtocolFactory("", srv.URL), url: filepath.Join(dir, "nope"), err: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			data, err := tc.factory(tc.url).Load(ctx)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(data))
		})
	}
}

type mockJSONLDLoader struct {
	schemas map[string]string
	calls   int
}

func (r *mockJSONLDLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	r.calls++
	if body, ok := r.schemas[u]; ok {
		var doc = ld.RemoteDocument{DocumentURL: u}
		err := json.Unmarshal([]byte(body), &doc.Document)
		return &doc, err
	}
	return nil, fmt.Errorf("schema not found: %v", u)
}

func TestCachedDocumentLoader(t *testing.T) {
	const u = "https://example.com/kyc-v3.json-ld"
	mock := &mockJSONLDLoader{schemas: map[string]string{u: `{"@context":{"KYCAgeCredential":{"@id":"urn:kyc"}}}`}}
	l := CachedDocumentLoader(mock, cache.NewMemoryCache())

	for i := 0; i < 3; i++ {
		doc, err := l.LoadDocument(u)
		require.NoError(t, err)
		assert.Equal(t, u, doc.DocumentURL)
		m, ok := doc.Document.(map[string]interface{})
		require.True(t, ok)
		assert.NotNil(t, m["@context"])
	}
	assert.Equal(t, 1, mock.calls)

	_, err := l.LoadDocument("https://example.com/missing")
	assert.Error(t, err)
}
