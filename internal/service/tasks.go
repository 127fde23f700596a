package service

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"crewshift-bot/internal/model"
)

type TaskResolver struct {
	tasks TaskSource
}

func NewTaskResolver(tasks TaskSource) *TaskResolver {
	return &TaskResolver{tasks: tasks}
}

// TasksDueOn returns the object's active tasks scheduled on the calendar day of date.
// The result depends only on the stored tasks and date, not on the wall clock.
func (r *TaskResolver) TasksDueOn(ctx context.Context, objectID bson.ObjectID, date time.Time) ([]model.ObjectTask, error) {
	all, err := r.tasks.ActiveTasks(ctx, objectID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	var due []model.ObjectTask
	for i := range all {
		if all[i].DeletedAt != nil {
			continue
		}
		if all[i].DueOn(date) {
			due = append(due, all[i])
		}
	}
	return due, nil
}
