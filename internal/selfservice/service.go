// Package selfservice implements per-user loader key management: status,
// creation, re-keying, disabling and loader heartbeats.
package selfservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/selfservice/internal/cache"
	"github.com/kiranshivaraju/selfservice/internal/keygen"
	"github.com/kiranshivaraju/selfservice/internal/store"
	"github.com/kiranshivaraju/selfservice/pkg/models"
)

// Options configures a Service.
type Options struct {
	NamePrefix string
	ExpectEnv  string
	StatusTTL  time.Duration
}

// Service orchestrates loader storage, key generation, the status cache and
// change notices.
type Service struct {
	store store.Store
	cache cache.Cache
	keys  *keygen.Generator
	hub   *Hub
	opts  Options
	nowFn func() time.Time
}

// NewService creates a new Service.
func NewService(st store.Store, ca cache.Cache, gen *keygen.Generator, hub *Hub, opts Options) *Service {
	if opts.NamePrefix == "" {
		opts.NamePrefix = "migss"
	}
	return &Service{
		store: st,
		cache: ca,
		keys:  gen,
		hub:   hub,
		opts:  opts,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// LoaderName converts a wire slot id into the loader name for remoteUser.
func (s *Service) LoaderName(remoteUser, slotID string) (string, error) {
	if err := ValidateUser(remoteUser); err != nil {
		return "", err
	}
	n, err := SlotIndex(slotID)
	if err != nil {
		return "", err
	}
	return loaderName(s.opts.NamePrefix, remoteUser, n), nil
}

// KeyStatus returns every loader belonging to remoteUser. The result is never nil.
func (s *Service) KeyStatus(ctx context.Context, remoteUser string) ([]*models.Loader, error) {
	if err := ValidateUser(remoteUser); err != nil {
		return nil, err
	}

	gen, genOK := s.statusGeneration(ctx, remoteUser)
	key := cache.KeyStatusKey(remoteUser)
	if genOK {
		if data, found, err := s.cache.Get(ctx, key); err == nil && found {
			var entry statusEntry
			if err := json.Unmarshal(data, &entry); err == nil && entry.Gen == gen && entry.Loaders != nil {
				return entry.Loaders, nil
			}
		}
	}

	loaders, err := s.listOwned(ctx, remoteUser)
	if err != nil {
		return nil, err
	}

	if genOK && s.opts.StatusTTL > 0 {
		if data, err := json.Marshal(statusEntry{Gen: gen, Loaders: loaders}); err == nil {
			if err := s.cache.Set(ctx, key, data, s.opts.StatusTTL); err != nil {
				slog.Debug("key status cache write failed", "error", err)
			}
		}
	}
	return loaders, nil
}

// statusEntry is a cached key status list tagged with the change generation
// it was read under. Entries from an older generation are ignored.
type statusEntry struct {
	Gen     int64            `json:"gen"`
	Loaders []*models.Loader `json:"loaders"`
}

func (s *Service) statusGeneration(ctx context.Context, remoteUser string) (int64, bool) {
	data, found, err := s.cache.Get(ctx, cache.KeyStatusGenKey(remoteUser))
	if err != nil {
		return 0, false
	}
	if !found {
		return 0, true
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// generationTTL outlives any cached status entry so a stale entry never
// matches a counter that expired and restarted.
func (s *Service) generationTTL() time.Duration {
	return max(time.Hour, 4*s.opts.StatusTTL)
}

// NewKey assigns a fresh key to the slot. An existing loader for the slot is
// re-enabled and re-keyed; otherwise a new enabled loader is created.
func (s *Service) NewKey(ctx context.Context, remoteUser, slotID string) (*models.LoaderKey, error) {
	name, err := s.LoaderName(remoteUser, slotID)
	if err != nil {
		return nil, err
	}

	prefix, rawKey, hash, err := s.keys.Generate()
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetLoaderByName(ctx, name)
	switch {
	case err == nil:
		return s.rekey(ctx, remoteUser, slotID, existing, prefix, rawKey, hash)
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, fmt.Errorf("lookup loader: %w", err)
	}

	now := s.nowFn()
	l := &models.Loader{
		ID:        uuid.New(),
		Name:      name,
		Prefix:    prefix,
		KeyHash:   hash,
		ExpectEnv: s.opts.ExpectEnv,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateLoader(ctx, l); err != nil {
		if !errors.Is(err, store.ErrDuplicateKey) {
			return nil, fmt.Errorf("create loader: %w", err)
		}
		// A concurrent request created the slot first.
		existing, err := s.store.GetLoaderByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("lookup loader after conflict: %w", err)
		}
		return s.rekey(ctx, remoteUser, slotID, existing, prefix, rawKey, hash)
	}
	slog.Info("loader created", "loader", name, "id", l.ID)
	s.changed(ctx, remoteUser, models.NoticeCreated, slotID)
	return &models.LoaderKey{ID: l.ID, Name: name, Prefix: prefix, Key: rawKey, Enabled: true}, nil
}

func (s *Service) rekey(ctx context.Context, remoteUser, slotID string, l *models.Loader, prefix, rawKey, hash string) (*models.LoaderKey, error) {
	if err := s.store.RekeyLoader(ctx, l.ID, prefix, hash); err != nil {
		return nil, fmt.Errorf("rekey loader: %w", err)
	}
	slog.Info("loader rekeyed", "loader", l.Name, "id", l.ID)
	s.changed(ctx, remoteUser, models.NoticeCreated, slotID)
	return &models.LoaderKey{ID: l.ID, Name: l.Name, Prefix: prefix, Key: rawKey, Enabled: true}, nil
}

// DelKey disables the loader assigned to the slot. Its record is kept so the
// slot can be re-keyed later.
func (s *Service) DelKey(ctx context.Context, remoteUser, slotID string) error {
	name, err := s.LoaderName(remoteUser, slotID)
	if err != nil {
		return err
	}

	l, err := s.store.GetLoaderByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return ErrLoaderNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup loader: %w", err)
	}

	if err := s.store.SetLoaderEnabled(ctx, l.ID, false); err != nil {
		return fmt.Errorf("disable loader: %w", err)
	}
	slog.Info("loader disabled", "loader", name, "id", l.ID)
	s.changed(ctx, remoteUser, models.NoticeRemoved, slotID)
	return nil
}

// AuthenticateLoader resolves a presented prefix+key credential to an enabled loader.
func (s *Service) AuthenticateLoader(ctx context.Context, credential string) (*models.Loader, error) {
	prefix, key, err := keygen.Split(credential)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	candidates, err := s.store.GetLoadersByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("lookup loader credential: %w", err)
	}
	for _, l := range candidates {
		if l.Enabled && keygen.Verify(l.KeyHash, key) {
			return l, nil
		}
	}
	return nil, ErrInvalidCredential
}

// Heartbeat records that an authenticated loader checked in.
func (s *Service) Heartbeat(ctx context.Context, l *models.Loader, agentName string) error {
	if err := s.store.UpdateLoaderLastSeen(ctx, l.ID, agentName, s.nowFn()); err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	if user, slot, ok := ownerOf(s.opts.NamePrefix, l.Name); ok {
		s.changed(ctx, user, models.NoticeSeen, "slot"+slot)
	}
	return nil
}

// listOwned lists the user's loaders, dropping names that only share the
// user's prefix (for example another user whose address extends this one).
func (s *Service) listOwned(ctx context.Context, remoteUser string) ([]*models.Loader, error) {
	prefix := userNamePrefix(s.opts.NamePrefix, remoteUser)
	all, err := s.store.ListLoaders(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list loaders: %w", err)
	}
	owned := make([]*models.Loader, 0, len(all))
	for _, l := range all {
		suffix := strings.TrimPrefix(l.Name, prefix)
		if _, err := strconv.Atoi(suffix); err != nil {
			continue
		}
		owned = append(owned, l)
	}
	return owned, nil
}

func (s *Service) changed(ctx context.Context, remoteUser, kind, slotID string) {
	if _, err := s.cache.IncrWithExpiry(ctx, cache.KeyStatusGenKey(remoteUser), s.generationTTL()); err != nil {
		slog.Warn("key status generation bump failed", "user", remoteUser, "error", err)
	}
	if err := s.cache.Delete(ctx, cache.KeyStatusKey(remoteUser)); err != nil {
		slog.Warn("key status cache invalidation failed", "user", remoteUser, "error", err)
	}
	if s.hub != nil {
		s.hub.Publish(remoteUser, models.Notice{Kind: kind, Slot: slotID, At: s.nowFn()})
	}
}
