package adapter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/genai"
	"mediaforge/internal/infra"
	"mediaforge/internal/schema"
	"mediaforge/internal/storage"
)

// Model identifiers form a closed set; the registry is validated against it
// at startup so a lookup can only fail for identifiers outside the set.
const (
	ModelVeo    = "veo-3.0-generate-001"
	ModelImagen = "imagen-4.0-generate-001"
	ModelLyria  = "lyria-2.0-generate-001"
)

// Registry maps a model identifier to its capability record. Resolution is a
// pure lookup; all structural validation happens in NewRegistry.
type Registry struct {
	caps    map[string]*Capability
	schemas schema.Provider
}

// Options carries the collaborators the capability records close over.
type Options struct {
	AI              *genai.Client
	Schemas         schema.Provider
	Storage         storage.Store
	SignedURLExpiry time.Duration
	Logger          infra.Logger
}

// NewRegistry builds and validates the capability record for every known
// model. A structurally invalid record is a programming error and aborts
// startup rather than surfacing as a request-time failure.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.SignedURLExpiry <= 0 {
		opts.SignedURLExpiry = time.Hour
	}
	deps := &modelDeps{
		ai:      opts.AI,
		schemas: opts.Schemas,
		store:   opts.Storage,
		expiry:  opts.SignedURLExpiry,
		logger:  opts.Logger,
	}

	r := &Registry{caps: map[string]*Capability{}, schemas: opts.Schemas}
	for _, rec := range []*Capability{
		newVeoCapability(deps),
		newImagenCapability(deps),
		newLyriaCapability(deps),
	} {
		if err := validateRecord(rec, opts.Schemas); err != nil {
			return nil, err
		}
		r.caps[rec.ModelID] = rec
	}
	return r, nil
}

func validateRecord(rec *Capability, schemas schema.Provider) error {
	if rec.ModelID == "" {
		return fmt.Errorf("adapter: capability without model id")
	}
	if rec.Start == nil {
		return fmt.Errorf("adapter: %s has no start operation", rec.ModelID)
	}
	if rec.Async && (rec.Poll == nil || rec.ExtractOutput == nil) {
		return fmt.Errorf("adapter: async model %s must expose poll and extractOutput", rec.ModelID)
	}
	if !rec.Async && rec.Poll != nil {
		return fmt.Errorf("adapter: sync model %s must not expose poll", rec.ModelID)
	}
	if _, err := schemas.GetSchema(rec.ModelID); err != nil {
		return fmt.Errorf("adapter: %s has no request schema: %w", rec.ModelID, err)
	}
	return nil
}

// Resolve returns the capability record for a model identifier, or
// ErrUnknownModel. Callers must resolve before running the analyzer with a
// caller-named model.
func (r *Registry) Resolve(model string) (*Capability, error) {
	rec, ok := r.caps[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownModel, model)
	}
	return rec, nil
}

// Models returns the registered model identifiers in stable order.
func (r *Registry) Models() []string {
	ids := make([]string, 0, len(r.caps))
	for id := range r.caps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// modelDeps are the collaborators shared by every capability record.
type modelDeps struct {
	ai      *genai.Client
	schemas schema.Provider
	store   storage.Store
	expiry  time.Duration
	logger  infra.Logger
}

// validateRequest runs the model's schema over the request and converts a
// failure into the fatal validation error kind. The backend is never called
// on failure.
func (d *modelDeps) validateRequest(model string, request []byte) error {
	s, err := d.schemas.GetSchema(model)
	if err != nil {
		return err
	}
	if err := s.Validate(request); err != nil {
		return &domain.JobError{Kind: domain.ErrKindValidation, Message: err.Error()}
	}
	return nil
}

// storeRef signs an existing storage URI into a FileRef.
func (d *modelDeps) storeRef(ctx context.Context, uri, mime string) (domain.FileRef, error) {
	signed, err := d.store.SignedURL(ctx, uri, d.expiry)
	if err != nil {
		return domain.FileRef{}, err
	}
	return domain.FileRef{StorageURI: uri, SignedURL: signed, MIMEType: mime}, nil
}

// uploadRef persists inline bytes under the job's output prefix and signs the
// result.
func (d *modelDeps) uploadRef(ctx context.Context, jobID, filename string, data []byte, mime string) (domain.FileRef, error) {
	uri := d.store.OutputURI(jobID, filename)
	if err := d.store.Upload(ctx, uri, data, mime); err != nil {
		return domain.FileRef{}, err
	}
	ref, err := d.storeRef(ctx, uri, mime)
	if err != nil {
		return domain.FileRef{}, err
	}
	ref.Size = int64(len(data))
	return ref, nil
}
