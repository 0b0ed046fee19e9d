package loader

import (
	"context"
	"fmt"
	"net/url"

	"github.com/polygonid/verifier-node/internal/log"
)

// MultiProtocol will return a loader for the given url that can be a local path, http or ipfs
func MultiProtocol(fileFactory Factory, httpFactory Factory, ipfsFactory Factory, _url string) Loader {
	u, err := url.Parse(_url)
	if err != nil {
		log.Error(context.Background(), "multiprotocol factory error", "err", err)
		return failing(err)
	}
	switch u.Scheme {
	case "", "file":
		return fileFactory(_url)
	case "http", "https":
		return httpFactory(_url)
	case "ipfs":
		return ipfsFactory(_url)
	}
	log.Error(context.Background(), "unknown protocol", "url", _url)
	return failing(fmt.Errorf("unsupported protocol %q", u.Scheme))
}

// MultiProtocolFactory will return a factory for the given url that can be a local path, http or ipfs
func MultiProtocolFactory(ipfsNodeURL string, ipfsGateway string) Factory {
	httpFactory := HTTPFactory(nil)
	ipfsFactory := IPFSFactory(ipfsNodeURL, ipfsGateway)
	return func(url string) Loader {
		return MultiProtocol(FileFactory, httpFactory, ipfsFactory, url)
	}
}
