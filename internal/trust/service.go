package trust

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"match-gateway/internal/platform/middleware"
	dErrors "match-gateway/pkg/domain-errors"
	"match-gateway/pkg/platform/audit"
)

// Registry is the service layer over the trust store. It owns the
// authorization rules: direction validity, the https requirement for
// outgoing partners, key generation, and inbound key uniqueness.
type Registry struct {
	store    Store
	recorder *audit.Recorder
	log      *slog.Logger
}

type Option func(*Registry)

func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

func WithAudit(recorder *audit.Recorder) Option {
	return func(r *Registry) { r.recorder = recorder }
}

func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{store: store, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddParams describes one authorization to create or update. Label defaults
// to the server id; an empty Key gets a generated one.
type AddParams struct {
	ServerID  string
	Label     string
	Key       string
	Direction Direction
	BaseURL   string
}

// GenerateKey returns a fresh shared secret: 30 random bytes, hex encoded.
func GenerateKey() (string, error) {
	buf := make([]byte, 30)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate server key")
	}
	return hex.EncodeToString(buf), nil
}

// Add creates or updates the authorization for (server id, direction).
// Adding the same pair twice updates the entry in place; the two directions
// of one server are independent entries.
func (r *Registry) Add(ctx context.Context, params AddParams) (*Entry, error) {
	if params.ServerID == "" {
		return nil, dErrors.New(dErrors.CodeConfig, "server id is required")
	}
	if !params.Direction.Valid() {
		return nil, dErrors.Newf(dErrors.CodeConfig, "direction must be %q or %q", DirectionIn, DirectionOut)
	}
	if params.Direction == DirectionOut {
		if params.BaseURL == "" {
			return nil, dErrors.New(dErrors.CodeConfig, "base URL is required for outgoing servers")
		}
		if !strings.HasPrefix(params.BaseURL, "https://") {
			return nil, dErrors.New(dErrors.CodeConfig, `base URL must start with "https://"`)
		}
	}

	entry := Entry{
		ServerID:  params.ServerID,
		Label:     params.Label,
		Key:       params.Key,
		Direction: params.Direction,
	}
	if params.Direction == DirectionOut {
		entry.BaseURL = params.BaseURL
	}
	if entry.Label == "" {
		entry.Label = entry.ServerID
	}
	if entry.Key == "" {
		key, err := GenerateKey()
		if err != nil {
			return nil, err
		}
		entry.Key = key
	}

	// Tokens identify the sender, so one inbound key must never belong to
	// two servers.
	if entry.Direction == DirectionIn {
		holders, err := r.store.FindByKey(ctx, entry.Key, DirectionIn)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check key uniqueness")
		}
		for _, holder := range holders {
			if holder.ServerID != entry.ServerID {
				return nil, dErrors.Newf(dErrors.CodeConfig,
					"key already authorized for server %q", holder.ServerID)
			}
		}
	}

	existing, err := r.store.Find(ctx, entry.ServerID, entry.Direction)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up server entry")
	}

	var id string
	switch len(existing) {
	case 0:
		id = uuid.NewString()
	case 1:
		id = existing[0].ID
	default:
		return nil, dErrors.Newf(dErrors.CodeConfig,
			"found two or more entries for server %q", entry.ServerID)
	}

	if err := r.store.Save(ctx, id, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "save server entry")
	}

	r.log.Info("authorized server",
		"server_id", entry.ServerID,
		"direction", entry.Direction,
		"updated", len(existing) == 1,
	)
	r.recorder.Record(ctx, "server.authorized", "", map[string]string{
		"server_id": entry.ServerID,
		"direction": string(entry.Direction),
	})
	return &entry, nil
}

// Remove deletes the authorization for one direction, or both when
// direction is empty. Removing an unknown server is a no-op.
func (r *Registry) Remove(ctx context.Context, serverID string, direction Direction) error {
	directions := []Direction{direction}
	if direction == "" {
		directions = []Direction{DirectionIn, DirectionOut}
	} else if !direction.Valid() {
		return dErrors.Newf(dErrors.CodeConfig, "direction must be %q or %q", DirectionIn, DirectionOut)
	}

	for _, dir := range directions {
		stored, err := r.store.Find(ctx, serverID, dir)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "look up server entry")
		}
		for _, st := range stored {
			if err := r.store.Delete(ctx, st.ID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "delete server entry")
			}
			r.log.Info("deauthorized server", "server_id", serverID, "direction", dir)
			r.recorder.Record(ctx, "server.deauthorized", "", map[string]string{
				"server_id": serverID,
				"direction": string(dir),
			})
		}
	}
	return nil
}

// List returns entries for one direction, or all entries when direction is
// empty.
func (r *Registry) List(ctx context.Context, direction Direction) ([]Entry, error) {
	if direction != "" && !direction.Valid() {
		return nil, dErrors.Newf(dErrors.CodeConfig, "direction must be %q or %q", DirectionIn, DirectionOut)
	}
	entries, err := r.store.List(ctx, direction)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list server entries")
	}
	return entries, nil
}

// Outbound returns every partner this gateway may query.
func (r *Registry) Outbound(ctx context.Context) ([]Entry, error) {
	return r.List(ctx, DirectionOut)
}

// VerifyToken resolves an inbound shared secret to the partner it was
// issued to. Unknown tokens yield (nil, nil).
func (r *Registry) VerifyToken(ctx context.Context, token string) (*middleware.ServerIdentity, error) {
	if token == "" {
		return nil, nil
	}
	stored, err := r.store.FindByKey(ctx, token, DirectionIn)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verify token")
	}
	if len(stored) == 0 {
		return nil, nil
	}
	entry := stored[0]
	return &middleware.ServerIdentity{ServerID: entry.ServerID, Label: entry.Label}, nil
}
