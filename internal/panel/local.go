package panel

import (
	"context"

	"github.com/kiranshivaraju/selfservice/pkg/models"
)

// KeyService is the in-process key service a LocalClient adapts.
type KeyService interface {
	KeyStatus(ctx context.Context, remoteUser string) ([]*models.Loader, error)
	NewKey(ctx context.Context, remoteUser, slotID string) (*models.LoaderKey, error)
	DelKey(ctx context.Context, remoteUser, slotID string) error
}

// LocalClient serves the panel for one user straight from a KeyService,
// skipping the HTTP round trip.
type LocalClient struct {
	svc        KeyService
	remoteUser string
}

func NewLocalClient(svc KeyService, remoteUser string) *LocalClient {
	return &LocalClient{svc: svc, remoteUser: remoteUser}
}

func (c *LocalClient) KeyStatus(ctx context.Context) (StatusReply, error) {
	loaders, err := c.svc.KeyStatus(ctx, c.remoteUser)
	if err != nil {
		return StatusReply{}, err
	}
	return StatusFromLoaders(loaders), nil
}

func (c *LocalClient) NewKey(ctx context.Context, slot SlotID) (KeyRecord, error) {
	k, err := c.svc.NewKey(ctx, c.remoteUser, string(slot))
	if err != nil {
		return KeyRecord{}, err
	}
	return KeyRecord{Name: k.Name, Prefix: k.Prefix, Key: k.Key}, nil
}

func (c *LocalClient) DelKey(ctx context.Context, slot SlotID) error {
	return c.svc.DelKey(ctx, c.remoteUser, string(slot))
}

// StatusFromLoaders converts stored loaders to the status reply shape.
func StatusFromLoaders(loaders []*models.Loader) StatusReply {
	reply := StatusReply{Loaders: make([]LoaderStatus, 0, len(loaders))}
	for _, l := range loaders {
		enabled := l.Enabled
		reply.Loaders = append(reply.Loaders, LoaderStatus{
			Name:     l.Name,
			Enabled:  &enabled,
			LastSeen: l.LastSeen,
		})
	}
	return reply
}

var _ Client = (*LocalClient)(nil)
