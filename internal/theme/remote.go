package theme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	client "github.com/polygonid/verifier-node/pkg/http"
)

const (
	getDataMethod  = "torii_getData"
	setDataMethod  = "torii_setData"
	jsonRPCVersion = "2.0"
)

// ErrNoRemoteData the provider has nothing stored for the account
var ErrNoRemoteData = errors.New("no theme stored for the account")

// Preferences is the blob the provider keeps per account
type Preferences struct {
	Theme *Mode `json:"theme,omitempty"`
}

// MarshalJSON writes the theme as its numeric value, the form wallets read back
func (p Preferences) MarshalJSON() ([]byte, error) {
	var wire struct {
		Theme *int `json:"theme,omitempty"`
	}
	if p.Theme != nil {
		if !p.Theme.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(*p.Theme))
		}
		n := int(*p.Theme)
		wire.Theme = &n
	}
	return json.Marshal(wire)
}

type dataParams struct {
	Account string       `json:"account"`
	Data    *Preferences `json:"data,omitempty"`
}

type rpcRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      uint64     `json:"id"`
	Method  string     `json:"method"`
	Params  dataParams `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Remote reads and writes theme preferences through the provider json-rpc methods.
// Params are sent as a single object.
type Remote struct {
	client *client.Client
	url    string
	nextID atomic.Uint64
}

// NewRemote returns a Remote posting to the provider at url
func NewRemote(url string, c *client.Client) *Remote {
	if c == nil {
		c = client.DefaultHTTPClientWithRetry
	}
	return &Remote{client: c, url: url}
}

// Get returns the theme stored for account
func (r *Remote) Get(ctx context.Context, account string) (Mode, error) {
	var prefs *Preferences
	if err := r.call(ctx, getDataMethod, dataParams{Account: account}, &prefs); err != nil {
		return Auto, err
	}
	if prefs == nil || prefs.Theme == nil {
		return Auto, ErrNoRemoteData
	}
	return *prefs.Theme, nil
}

// Set stores mode as the theme of account
func (r *Remote) Set(ctx context.Context, account string, mode Mode) error {
	return r.call(ctx, setDataMethod, dataParams{Account: account, Data: &Preferences{Theme: &mode}}, nil)
}

func (r *Remote) call(ctx context.Context, method string, params dataParams, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      r.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}
	raw, err := r.client.Post(ctx, r.url, body)
	if err != nil {
		return err
	}
	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %w", method, resp.Error)
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, result)
}
