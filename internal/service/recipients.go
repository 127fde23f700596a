package service

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Recipients resolves the supervisor channels to notify about a worker or object.
type Recipients struct {
	directory Directory
}

func NewRecipients(directory Directory) *Recipients {
	return &Recipients{directory: directory}
}

// Resolve returns channel ids without duplicates: the worker's creator admin and the object's
// owner admins, or every bound admin when neither yields a channel.
func (r *Recipients) Resolve(ctx context.Context, objectID, workerID *bson.ObjectID) ([]string, error) {
	var channels []string
	seen := make(map[string]bool)
	add := func(channelID string) {
		if channelID == "" || seen[channelID] {
			return
		}
		seen[channelID] = true
		channels = append(channels, channelID)
	}

	if workerID != nil {
		worker, err := r.directory.Worker(ctx, *workerID)
		if err != nil {
			return nil, fmt.Errorf("load worker: %w", err)
		}
		if worker != nil && worker.CreatedBy != nil {
			admin, err := r.directory.Admin(ctx, *worker.CreatedBy)
			if err != nil {
				return nil, fmt.Errorf("load creator admin: %w", err)
			}
			if admin != nil {
				add(admin.ChannelID)
			}
		}
	}

	if objectID != nil {
		object, err := r.directory.Object(ctx, *objectID)
		if err != nil {
			return nil, fmt.Errorf("load object: %w", err)
		}
		if object != nil && len(object.OwnerIDs) > 0 {
			owners, err := r.directory.BoundAdmins(ctx, object.OwnerIDs)
			if err != nil {
				return nil, fmt.Errorf("load object owners: %w", err)
			}
			for _, a := range owners {
				add(a.ChannelID)
			}
		}
	}

	if len(channels) > 0 {
		return channels, nil
	}

	all, err := r.directory.BoundAdmins(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load admins: %w", err)
	}
	for _, a := range all {
		add(a.ChannelID)
	}
	return channels, nil
}
