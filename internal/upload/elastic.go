package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/maxpark/access-controller/internal"
	"github.com/maxpark/access-controller/internal/core/datamodel/transaction"
)

// remoteDocument is the shape shipped to the document store: the local
// transaction plus entity_id and the upload-time created_at. Neither extra
// field ever appears in the local log.
type remoteDocument struct {
	transaction.Transaction
	EntityID  string    `json:"entity_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Elastic implements RemoteStore against an Elasticsearch index, one
// document per transaction with a server-generated id so replays after a
// crash produce distinct documents rather than silent overwrites.
type Elastic struct {
	client *elasticsearch.Client
	index  string
	entity func() string
	logger *slog.Logger
}

// NewElastic builds the client. entity is read per upload so a runtime
// entity_id change applies without restart.
func NewElastic(cfg internal.RemoteConfig, entity func() string, logger *slog.Logger) (*Elastic, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Elastic{
		client: client,
		index:  cfg.Index,
		entity: entity,
		logger: logger,
	}, nil
}

func (e *Elastic) Put(ctx context.Context, tx transaction.Transaction) error {
	doc := remoteDocument{
		Transaction: tx,
		EntityID:    e.entity(),
		CreatedAt:   time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(doc); err != nil {
		return err
	}

	res, err := e.client.Index(
		e.index,
		&buf,
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index transaction: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index transaction: %s", res.String())
	}
	return nil
}

// Healthy returns nil when the cluster answers an Info call; used by
// /status alongside the generic internet probe.
func (e *Elastic) Healthy(ctx context.Context) error {
	res, err := e.client.Info(e.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("cluster info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("cluster info: %s", res.String())
	}
	return nil
}
