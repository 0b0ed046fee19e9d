package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/iden3/go-schema-processor/v2/loaders"
	"github.com/piprate/json-gold/ld"

	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/pkg/cache"
)

type cachedDocument struct {
	loader ld.DocumentLoader
	cache  cache.Cache
}

type remoteDocument struct {
	DocumentURL string
	ContextURL  string
	Document    []byte
}

// NewDocumentLoader returns a json-ld document loader that resolves http and ipfs urls.
// Documents are kept in c, when given, so the schemas used by merklize are fetched once.
func NewDocumentLoader(ipfsGateway string, c cache.Cache) ld.DocumentLoader {
	l := loaders.NewDocumentLoader(nil, ipfsGateway)
	if c == nil {
		return l
	}
	return CachedDocumentLoader(l, c)
}

// CachedDocumentLoader decorates l with a cache
func CachedDocumentLoader(l ld.DocumentLoader, c cache.Cache) ld.DocumentLoader {
	return &cachedDocument{loader: l, cache: c}
}

// LoadDocument satisfies ld.DocumentLoader
func (c *cachedDocument) LoadDocument(u string) (*ld.RemoteDocument, error) {
	ctx := log.With(context.Background(), "url", u)
	key := documentKey(u)
	var rd remoteDocument
	if c.cache.Get(ctx, key, &rd) {
		doc, err := ld.DocumentFromReader(bytes.NewReader(rd.Document))
		if err == nil {
			return &ld.RemoteDocument{DocumentURL: rd.DocumentURL, ContextURL: rd.ContextURL, Document: doc}, nil
		}
		log.Warn(ctx, "cached json-ld document is corrupt", "err", err)
	}

	doc, err := c.loader.LoadDocument(u)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(doc.Document)
	if err != nil {
		return doc, nil
	}
	rd = remoteDocument{DocumentURL: doc.DocumentURL, ContextURL: doc.ContextURL, Document: raw}
	if err := c.cache.Set(ctx, key, rd, cache.ForEver); err != nil {
		log.Warn(ctx, "adding json-ld document to cache. Bypassing cache", "err", err)
	}
	return doc, nil
}

func documentKey(url string) string {
	return fmt.Sprintf("jsonld-%s", url)
}
