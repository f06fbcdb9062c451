// Package webhook : passerelle d'ingestion des callbacks gateway.
// Chaque provider a son normaliseur ; tous vérifient la signature AVANT tout
// traitement (fail closed) et produisent la même forme interne NormalizedEvent,
// pour que le processeur de réconciliation reste agnostique du provider.
package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"velora_back_end/internal/models"
)

// ErrSignatureInvalid : payload non authentifié. L'événement doit être jeté,
// jamais mis en file — un faux webhook ne doit pas pouvoir confirmer un paiement.
var ErrSignatureInvalid = errors.New("signature de webhook invalide")

type Normalizer interface {
	Provider() string
	// SignatureHeader : nom du header HTTP portant la signature du provider
	SignatureHeader() string
	Normalize(payload []byte, sigHeader string) (*models.NormalizedEvent, error)
}

// Registry associe le segment d'URL /api/webhooks/:provider à son normaliseur
type Registry struct {
	normalizers map[string]Normalizer
}

func NewRegistry(normalizers ...Normalizer) *Registry {
	r := &Registry{normalizers: make(map[string]Normalizer)}
	for _, n := range normalizers {
		r.normalizers[n.Provider()] = n
	}
	return r
}

func (r *Registry) Lookup(provider string) (Normalizer, bool) {
	n, ok := r.normalizers[provider]
	return n, ok
}

// payloadDigest calcule l'empreinte sha-256 du payload brut (audit)
func payloadDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
