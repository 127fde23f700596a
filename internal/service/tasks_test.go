package service

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"crewshift-bot/internal/model"
)

func TestTasksDueOn(t *testing.T) {
	objectID := bson.NewObjectID()
	deleted := time.Now()
	source := &fakeTasks{tasks: []model.ObjectTask{
		{ID: bson.NewObjectID(), ObjectID: objectID, Title: "mondays", Weekdays: []time.Weekday{time.Monday}},
		{ID: bson.NewObjectID(), ObjectID: objectID, Title: "tuesdays", Weekdays: []time.Weekday{time.Tuesday}},
		{ID: bson.NewObjectID(), ObjectID: objectID, Title: "today only", Dates: []string{"2026-10-19"}},
		{ID: bson.NewObjectID(), ObjectID: objectID, Title: "tomorrow only", Dates: []string{"2026-10-20"}},
		{ID: bson.NewObjectID(), ObjectID: objectID, Title: "always"},
		{ID: bson.NewObjectID(), ObjectID: objectID, Title: "deleted", DeletedAt: &deleted},
		{ID: bson.NewObjectID(), ObjectID: bson.NewObjectID(), Title: "other object"},
	}}
	r := NewTaskResolver(source)

	morning := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC)

	first, err := r.TasksDueOn(context.Background(), objectID, morning)
	if err != nil {
		t.Fatalf("tasks due: %v", err)
	}
	second, err := r.TasksDueOn(context.Background(), objectID, evening)
	if err != nil {
		t.Fatalf("tasks due: %v", err)
	}

	want := []string{"mondays", "today only", "always"}
	for _, got := range [][]model.ObjectTask{first, second} {
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %d tasks", want, len(got))
		}
		for i, task := range got {
			if task.Title != want[i] {
				t.Fatalf("expected %s at %d, got %s", want[i], i, task.Title)
			}
		}
	}
}
