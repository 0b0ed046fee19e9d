package loader

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/polygonid/verifier-node/internal/log"
)

var errInvalidIPFSURL = errors.New("invalid ipfs url")

type ipfsNode struct {
	sh   *shell.Shell
	path string
}

// Load reads the content through the ipfs node api
func (l *ipfsNode) Load(ctx context.Context) ([]byte, error) {
	rc, err := l.sh.Cat(l.path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rc.Close(); err != nil {
			log.Error(ctx, "closing ipfs reader", "err", err)
		}
	}()
	return io.ReadAll(rc)
}

// IPFS returns a loader for an ipfs:// url. The content is read from the ipfs node api at nodeURL
// when it is set. Otherwise it is fetched from the http gateway.
func IPFS(nodeURL string, gateway string, _url string) Loader {
	path, err := ipfsPath(_url)
	if err != nil {
		log.Error(context.Background(), "ipfs factory error", "err", err, "url", _url)
		return failing(err)
	}
	if nodeURL != "" {
		return &ipfsNode{sh: shell.NewShell(nodeURL), path: path}
	}
	return HTTPFactory(nil)(strings.TrimRight(gateway, "/") + "/ipfs/" + path)
}

// IPFSFactory returns an ipfs loader factory
func IPFSFactory(nodeURL string, gateway string) Factory {
	return func(url string) Loader {
		return IPFS(nodeURL, gateway, url)
	}
}

func ipfsCID(ipfsURL string) (cid string, err error) {
	u, err := url.Parse(ipfsURL)
	if err != nil {
		return ipfsURL, err
	}
	if u.Scheme == "ipfs" && u.Host != "" {
		return u.Host, nil
	}
	return "", errInvalidIPFSURL
}

// ipfsPath returns the cid followed by the path inside the directory, if any
func ipfsPath(ipfsURL string) (string, error) {
	cid, err := ipfsCID(ipfsURL)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(ipfsURL)
	return cid + strings.TrimRight(u.Path, "/"), nil
}

func failing(err error) Loader {
	return LoaderFunc(func(context.Context) ([]byte, error) { return nil, err })
}
