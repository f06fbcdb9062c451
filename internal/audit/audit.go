// Package audit : traçabilité des webhooks de paiement.
// Les payloads bruts sont archivés dans MinIO (empreinte sha-256 comme clé)
// et les événements appliqués sont indexés dans Elasticsearch. Tout est
// best-effort : l'audit ne doit jamais faire échouer la réconciliation.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"time"

	"velora_back_end/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/minio/minio-go/v7"
)

const eventsIndex = "payment_events"

type Recorder struct {
	Elastic *elasticsearch.Client // optionnel
	Minio   *minio.Client         // optionnel
	Bucket  string
}

// IndexAppliedEvent indexe un événement appliqué dans Elasticsearch
func (r *Recorder) IndexAppliedEvent(evt models.NormalizedEvent, rec models.IdempotencyRecord) {
	if r == nil || r.Elastic == nil {
		return
	}

	doc := map[string]interface{}{
		"event_id":     evt.ID,
		"provider":     evt.Provider,
		"type":         evt.Type,
		"session_id":   evt.SessionID,
		"gateway_ref":  evt.GatewayRef,
		"amount":       evt.Amount,
		"currency":     evt.Currency,
		"raw_digest":   evt.RawDigest,
		"outcome":      rec.Outcome,
		"reason":       rec.Reason,
		"order_id":     rec.OrderID,
		"order_status": rec.OrderStatus,
		"seq":          rec.Seq,
		"recorded_at":  rec.RecordedAt.Format(time.RFC3339),
	}
	data, _ := json.Marshal(doc)

	req := esapi.IndexRequest{
		Index:      eventsIndex,
		DocumentID: evt.ID,
		Body:       bytes.NewReader(data),
	}

	res, err := req.Do(context.Background(), r.Elastic)
	if err != nil {
		log.Println("❌ Erreur indexation Elastic:", err)
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Printf("⚠️ Elastic a renvoyé une erreur pour %s: %s", evt.ID, res.String())
	}
}

// ArchivePayload archive le payload brut d'un webhook dans MinIO,
// sous webhooks/<provider>/<digest>.json
func (r *Recorder) ArchivePayload(provider, digest string, payload []byte) {
	if r == nil || r.Minio == nil || r.Bucket == "" {
		return
	}

	objectName := "webhooks/" + provider + "/" + digest + ".json"
	_, err := r.Minio.PutObject(context.Background(), r.Bucket, objectName,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		log.Printf("⚠️ Archivage MinIO échoué pour %s: %v", objectName, err)
	}
}
