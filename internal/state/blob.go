package state

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/httpretry"

	"github.com/yourorg/rpc-dashboard/internal/model"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

// BlobConfig configures the remote blob store
type BlobConfig struct {
	BaseURL   string
	StoreID   string
	Token     string
	Namespace string
	Timeout   time.Duration
}

// BlobStore keeps one JSON document per blockchain in a remote blob service.
// Every call round-trips; nothing is cached locally.
type BlobStore struct {
	cfg    BlobConfig
	client *http.Client
}

// NewBlobStore creates a blob-backed Store
func NewBlobStore(cfg BlobConfig) *BlobStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := httpretry.NewCustomClient(
		&http.Client{Timeout: timeout},
		httpretry.WithMaxRetryCount(3),
		httpretry.WithRetryPolicy(func(statusCode int, err error) bool {
			return err != nil || statusCode >= 500 || statusCode == 429
		}),
		httpretry.WithBackoffPolicy(func(attemptNum int) time.Duration {
			return time.Duration(attemptNum+1) * 500 * time.Millisecond
		}),
	)

	return &BlobStore{cfg: cfg, client: client}
}

// pathname returns the deterministic blob path for chain
func (s *BlobStore) pathname(chain types.Blockchain) string {
	return fmt.Sprintf("%s/%s.json", s.cfg.Namespace, chain)
}

// objectURL appends the blob path to the base URL, keeping any base path
func (s *BlobStore) objectURL(chain types.Blockchain) string {
	return strings.TrimSuffix(s.cfg.BaseURL, "/") + "/" + s.pathname(chain)
}

func (s *BlobStore) request(u string) *requests.Builder {
	return requests.URL(u).
		Client(s.client).
		Bearer(s.cfg.Token).
		Header("x-store-id", s.cfg.StoreID)
}

// Put uploads the snapshot, replacing any previous blob at the same path
func (s *BlobStore) Put(ctx context.Context, chain types.Blockchain, st model.ChainState) error {
	err := s.request(s.objectURL(chain)).
		Put().
		Header("x-add-random-suffix", "false").
		Header("x-allow-overwrite", "1").
		Header("x-access", "private").
		Header("x-cache-control-max-age", "0").
		BodyJSON(newRecord(st)).
		Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to put %s state: %w", chain, err)
	}

	logrus.WithFields(logrus.Fields{
		"blockchain": chain,
		"pathname":   s.pathname(chain),
	}).Debug("Stored chain state")
	return nil
}

type blobListing struct {
	Blobs []struct {
		URL      string `json:"url"`
		Pathname string `json:"pathname"`
	} `json:"blobs"`
	Cursor  string `json:"cursor"`
	HasMore bool   `json:"hasMore"`
}

// locate pages through the namespace listing until it finds the blob for chain
func (s *BlobStore) locate(ctx context.Context, chain types.Blockchain) (string, error) {
	want := s.pathname(chain)
	cursor := ""
	for {
		var listing blobListing
		b := s.request(s.cfg.BaseURL).Param("prefix", s.cfg.Namespace+"/")
		if cursor != "" {
			b.Param("cursor", cursor)
		}
		if err := b.ToJSON(&listing).Fetch(ctx); err != nil {
			return "", fmt.Errorf("failed to list state blobs: %w", err)
		}

		for _, blob := range listing.Blobs {
			if strings.EqualFold(blob.Pathname, want) {
				return blob.URL, nil
			}
		}
		if !listing.HasMore || listing.Cursor == "" || listing.Cursor == cursor {
			return "", ErrNotFound
		}
		cursor = listing.Cursor
	}
}

// Get lists the namespace, locates the blob for chain and downloads it
func (s *BlobStore) Get(ctx context.Context, chain types.Blockchain) (model.ChainState, error) {
	blobURL, err := s.locate(ctx, chain)
	if err != nil {
		return model.ChainState{}, err
	}

	var rec record
	err = s.request(blobURL).
		AddValidator(func(res *http.Response) error {
			if res.StatusCode == http.StatusNotFound {
				return ErrNotFound
			}
			return nil
		}).
		AddValidator(requests.DefaultValidator).
		ToJSON(&rec).
		Fetch(ctx)
	if errors.Is(err, ErrNotFound) {
		return model.ChainState{}, ErrNotFound
	}
	if err != nil {
		return model.ChainState{}, fmt.Errorf("failed to download %s state: %w", chain, err)
	}
	return rec.ChainState, nil
}
