// Package kvstore provides tools to store and retrieve values in a shared store.KV.
package kvstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/store"
	"github.com/effective-security/toolagent/tools"
)

const (
	StoreToolName    = "store_data"
	RetrieveToolName = "retrieve_data"
	ListToolName     = "list_keys"
)

type StoreRequest struct {
	Key   string `json:"key" jsonschema:"description=The key to store the value under" validate:"required"`
	Value string `json:"value" jsonschema:"description=The value to store"`
}

type RetrieveRequest struct {
	Key string `json:"key" jsonschema:"description=The key of a previously stored value" validate:"required"`
}

type ListRequest struct{}

// Keys is the output of list_keys.
type Keys struct {
	Keys []string `json:"keys"`
}

func (k *Keys) GetContent() string {
	return "Stored keys: [" + strings.Join(k.Keys, ", ") + "]"
}

// New returns the store, retrieve and list tools sharing kv.
func New(kv store.KV) []tools.ITool {
	put := tools.MustFunc(StoreToolName, "Store a value with a key for later retrieval",
		func(ctx context.Context, req *StoreRequest) (*string, error) {
			if err := kv.Put(ctx, req.Key, req.Value); err != nil {
				return nil, errors.WithMessage(err, StoreToolName)
			}
			res := fmt.Sprintf("Stored data with key: %s", req.Key)
			return &res, nil
		})
	get := tools.MustFunc(RetrieveToolName, "Retrieve a previously stored value by its key",
		func(ctx context.Context, req *RetrieveRequest) (*string, error) {
			v, err := kv.Get(ctx, req.Key)
			if errors.Is(err, store.ErrNotFound) {
				msg := fmt.Sprintf("No data found for key: %s", req.Key)
				return nil, chatmodel.NewToolError("key_not_found", msg).
					WithDetail(chatmodel.ObjectFrom("message", msg))
			}
			if err != nil {
				return nil, errors.WithMessage(err, RetrieveToolName)
			}
			res := fmt.Sprintf("Value for '%s': %s", req.Key, v)
			return &res, nil
		})
	list := tools.MustFunc(ListToolName, "List all stored data keys",
		func(ctx context.Context, _ *ListRequest) (*Keys, error) {
			keys, err := kv.Keys(ctx)
			if err != nil {
				return nil, errors.WithMessage(err, ListToolName)
			}
			return &Keys{Keys: keys}, nil
		})
	return []tools.ITool{put, get, list}
}
