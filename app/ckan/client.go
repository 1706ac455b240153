package ckan

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/shelter-sync/app/shelter"
)

var _ shelter.Source = (*Client)(nil)

// Client pages through a CKAN datastore resource.
type Client struct {
	source     *Source
	httpClient *http.Client
	userAgent  string
}

func NewClient(source *Source, httpClient *http.Client, userAgent string) *Client {
	return &Client{
		source:     source,
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// Records yields every datastore record of the configured resource. The
// sequence ends with a single error on the first failed request.
func (c *Client) Records(ctx context.Context) iter.Seq2[shelter.RawRecord, error] {
	return func(yield func(shelter.RawRecord, error) bool) {
		resourceID, err := c.resolveResourceID(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		offset := 0
		for {
			page, err := c.fetchPage(ctx, resourceID, offset)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, record := range page.Records {
				if !yield(record, nil) {
					return
				}
			}

			offset += len(page.Records)
			if len(page.Records) == 0 || offset >= page.Total {
				return
			}
		}
	}
}

func (c *Client) resolveResourceID(ctx context.Context) (string, error) {
	if c.source.ResourceID != "" {
		return c.source.ResourceID, nil
	}

	params := url.Values{}
	params.Set("id", c.source.PackageID)

	pkg, err := get[packageResult](ctx, c, "package_show", params)
	if err != nil {
		return "", err
	}

	for _, res := range pkg.Resources {
		if res.DatastoreActive {
			return res.ID, nil
		}
	}

	return "", fmt.Errorf("package %s has no datastore resource", c.source.PackageID)
}

func (c *Client) fetchPage(ctx context.Context, resourceID string, offset int) (datastoreResult, error) {
	params := url.Values{}
	params.Set("id", resourceID)
	params.Set("limit", strconv.Itoa(c.source.Settings.PageSize))
	params.Set("offset", strconv.Itoa(offset))

	return get[datastoreResult](ctx, c, "datastore_search", params)
}

func get[T any](ctx context.Context, c *Client, action string, params url.Values) (T, error) {
	var zero T

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(c.source.Settings.Timeout)*time.Second)
	defer cancel()

	endpoint := strings.TrimSuffix(c.source.BaseURL, "/") + "/" + action + "?" + params.Encode()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return zero, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("failed to call %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("HTTP error from %s: %d %s", action, resp.StatusCode, resp.Status)
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()

	var body response[T]
	if err := decoder.Decode(&body); err != nil {
		return zero, fmt.Errorf("failed to decode %s response: %w", action, err)
	}

	if !body.Success {
		if body.Error != nil {
			return zero, fmt.Errorf("%s failed: %w", action, body.Error)
		}
		return zero, fmt.Errorf("%s failed", action)
	}

	return body.Result, nil
}
