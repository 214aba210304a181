package shopify

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shoprewrite/backend/internal/domain"
)

type collectionRecord struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Handle string `json:"handle"`
}

func (r collectionRecord) collection() domain.Collection {
	return domain.Collection{ID: r.ID, Title: r.Title, Handle: r.Handle}
}

// ListCollections returns the custom and the smart collections of the store
// and remembers their handles for category detection
func (c *Client) ListCollections(ctx context.Context, store domain.Store) ([]domain.Collection, error) {
	var out []domain.Collection
	for _, kind := range []string{"custom_collections", "smart_collections"} {
		records, err := c.listCollectionKind(ctx, store, kind)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			c.rememberHandle(store, r)
			out = append(out, r.collection())
		}
	}

	c.logger.Debug().Str("store", store.Domain).Int("collections", len(out)).Msg("collections listed")
	return out, nil
}

func (c *Client) listCollectionKind(ctx context.Context, store domain.Store, kind string) ([]collectionRecord, error) {
	var all []collectionRecord
	err := c.paginate(func(sinceID int64) (int, int64, error) {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(c.config.PageSize))
		if sinceID > 0 {
			params.Set("since_id", strconv.FormatInt(sinceID, 10))
		}

		page := map[string][]collectionRecord{}
		if err := c.getJSON(ctx, store, "list "+kind, kind+".json", params, &page); err != nil {
			return 0, 0, err
		}
		records := page[kind]
		all = append(all, records...)
		return len(records), lastCollectionID(records), nil
	})
	return all, err
}

// ListCollectionProductIDs returns the ids of every product in a collection
func (c *Client) ListCollectionProductIDs(ctx context.Context, store domain.Store, collectionID int64) ([]int64, error) {
	var ids []int64
	err := c.paginate(func(sinceID int64) (int, int64, error) {
		params := url.Values{}
		params.Set("collection_id", strconv.FormatInt(collectionID, 10))
		params.Set("fields", "id")
		params.Set("limit", strconv.Itoa(c.config.PageSize))
		if sinceID > 0 {
			params.Set("since_id", strconv.FormatInt(sinceID, 10))
		}

		var page struct {
			Products []struct {
				ID int64 `json:"id"`
			} `json:"products"`
		}
		if err := c.getJSON(ctx, store, "list collection products", "products.json", params, &page); err != nil {
			return 0, 0, err
		}

		var last int64
		for _, p := range page.Products {
			ids = append(ids, p.ID)
			last = max(last, p.ID)
		}
		return len(page.Products), last, nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ProductCollectionHandles returns the sorted, distinct handles of the
// collections a product belongs to. Handles missing from the cache are
// looked up by collection id.
func (c *Client) ProductCollectionHandles(ctx context.Context, store domain.Store, productID int64) ([]string, error) {
	params := url.Values{}
	params.Set("product_id", strconv.FormatInt(productID, 10))
	params.Set("limit", strconv.Itoa(c.config.PageSize))

	var page struct {
		Collects []struct {
			CollectionID int64 `json:"collection_id"`
		} `json:"collects"`
	}
	if err := c.getJSON(ctx, store, "list collects", "collects.json", params, &page); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var handles []string
	for _, collect := range page.Collects {
		handle, err := c.collectionHandle(ctx, store, collect.CollectionID)
		if err != nil {
			return nil, err
		}
		if handle != "" && !seen[handle] {
			seen[handle] = true
			handles = append(handles, handle)
		}
	}
	sort.Strings(handles)
	return handles, nil
}

func (c *Client) collectionHandle(ctx context.Context, store domain.Store, collectionID int64) (string, error) {
	if h, ok := c.handles.Get(handleKey(store, collectionID)); ok {
		return h, nil
	}

	params := url.Values{}
	params.Set("ids", strconv.FormatInt(collectionID, 10))
	for _, kind := range []string{"custom_collections", "smart_collections"} {
		page := map[string][]collectionRecord{}
		if err := c.getJSON(ctx, store, "get "+kind, kind+".json", params, &page); err != nil {
			return "", err
		}
		if records := page[kind]; len(records) > 0 {
			return c.rememberHandle(store, records[0]), nil
		}
	}
	return "", nil
}

func (c *Client) rememberHandle(store domain.Store, r collectionRecord) string {
	handle := r.Handle
	if handle == "" {
		handle = r.Title
	}
	if handle == "" {
		handle = strconv.FormatInt(r.ID, 10)
	}
	c.handles.Add(handleKey(store, r.ID), handle)
	return handle
}

func handleKey(store domain.Store, collectionID int64) string {
	return fmt.Sprintf("%s/%d", strings.ToLower(store.Domain), collectionID)
}

func lastCollectionID(records []collectionRecord) int64 {
	var last int64
	for _, r := range records {
		last = max(last, r.ID)
	}
	return last
}

// paginate walks since_id pages until a page comes back empty or short
func (c *Client) paginate(fetch func(sinceID int64) (n int, lastID int64, err error)) error {
	var sinceID int64
	for {
		n, lastID, err := fetch(sinceID)
		if err != nil {
			return err
		}
		if n == 0 || n < c.config.PageSize || lastID <= sinceID {
			return nil
		}
		sinceID = lastID
	}
}
